package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/woozymasta/mcstatus/internal/config"
	"github.com/woozymasta/mcstatus/internal/minecraft"
)

// report is the output of the json command. Each probe fails independently.
type report struct {
	Status *minecraft.StatusResponse `json:"status,omitempty"`
	Query  *minecraft.QueryResponse  `json:"query,omitempty"`
	Errors map[string]string         `json:"errors,omitempty"`
	Ping   float64                   `json:"ping_ms,omitempty"`
	Online bool                      `json:"online"`
}

// probe runs one of the address commands and prints its result to w.
func probe(ctx context.Context, cfg *config.Config, w io.Writer) error {
	opts := cfg.Probe.Options()

	server, err := minecraft.Lookup(ctx, cfg.Address(), opts.Resolver)
	if err != nil {
		return err
	}

	switch cfg.Command {
	case config.CommandPing:
		latency, err := server.Ping(ctx, opts)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s responded in %.2f ms\n", server.Address(), milliseconds(latency))
		return err

	case config.CommandStatus:
		status, err := server.Status(ctx, opts)
		if err != nil {
			return err
		}
		return printStatus(w, status)

	case config.CommandQuery:
		query, err := server.Query(ctx, opts)
		if err != nil {
			return err
		}
		return printQuery(w, query)

	case config.CommandJSON:
		return writeReport(w, collect(ctx, server, opts))
	}

	return fmt.Errorf("unknown command %q", cfg.Command)
}

// collect runs ping, status and query against server.
func collect(ctx context.Context, server *minecraft.Server, opts minecraft.Options) report {
	r := report{Errors: make(map[string]string)}

	if latency, err := server.Ping(ctx, opts); err != nil {
		r.Errors["ping"] = err.Error()
	} else {
		r.Ping = milliseconds(latency)
		r.Online = true
	}

	if status, err := server.Status(ctx, opts); err != nil {
		r.Errors["status"] = err.Error()
	} else {
		r.Status = status
		r.Online = true
	}

	if query, err := server.Query(ctx, opts); err != nil {
		r.Errors["query"] = err.Error()
	} else {
		r.Query = query
	}

	return r
}

func writeReport(w io.Writer, r report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(r)
}

func printStatus(w io.Writer, s *minecraft.StatusResponse) error {
	var names []string
	for _, p := range s.Players.Sample {
		names = append(names, p.Name)
	}

	players := fmt.Sprintf("%d/%d", s.Players.Online, s.Players.Max)
	if len(names) > 0 {
		players += " " + strings.Join(names, ", ")
	}

	_, err := fmt.Fprintf(w, "version: v%s (protocol %d)\ndescription: %q\nplayers: %s\nlatency: %.2f ms\n",
		s.Version.Name, s.Version.Protocol, s.Description.Text, players, milliseconds(s.Latency))

	return err
}

func printQuery(w io.Writer, q *minecraft.QueryResponse) error {
	plugins := "none"
	if len(q.Software.Plugins) > 0 {
		plugins = strings.Join(q.Software.Plugins, ", ")
	}

	_, err := fmt.Fprintf(w, "host: %s:%d\nsoftware: v%s %s\nplugins: %s\nmotd: %q\nplayers: %d/%d %s\n",
		q.HostIP, q.HostPort,
		q.Software.Version, q.Software.Brand,
		plugins,
		q.MOTD,
		q.Players.Online, q.Players.Max, strings.Join(q.Players.Names, ", "))

	return err
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
