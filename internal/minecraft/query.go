package minecraft

import (
	"fmt"
	"strconv"
	"strings"
)

// QueryResponse is the decoded full stat reply.
type QueryResponse struct {
	Raw      map[string]string `json:"raw"`
	MOTD     string            `json:"motd"`
	Map      string            `json:"map"`
	GameType string            `json:"game_type"`
	GameID   string            `json:"game_id"`
	HostIP   string            `json:"host_ip"`
	Software QuerySoftware     `json:"software"`
	Players  QueryPlayers      `json:"players"`
	HostPort int               `json:"host_port"`
}

// QueryPlayers holds player counts and the full list of online names.
type QueryPlayers struct {
	Names  []string `json:"names"`
	Online int      `json:"online"`
	Max    int      `json:"max"`
}

// QuerySoftware describes the server software and its plugins.
type QuerySoftware struct {
	Version string   `json:"version"`
	Brand   string   `json:"brand"`
	Plugins []string `json:"plugins"`
}

func newQueryResponse(raw map[string]string, players []string) (*QueryResponse, error) {
	online, err := intField(raw, "numplayers")
	if err != nil {
		return nil, err
	}
	maxPlayers, err := intField(raw, "maxplayers")
	if err != nil {
		return nil, err
	}

	resp := &QueryResponse{
		Raw:      raw,
		MOTD:     raw["hostname"],
		Map:      raw["map"],
		GameType: raw["gametype"],
		GameID:   raw["game_id"],
		HostIP:   raw["hostip"],
		Players: QueryPlayers{
			Names:  players,
			Online: online,
			Max:    maxPlayers,
		},
		Software: parseSoftware(raw["version"], raw["plugins"]),
	}
	if resp.Players.Names == nil {
		resp.Players.Names = []string{}
	}

	if _, ok := raw["hostport"]; ok {
		if resp.HostPort, err = intField(raw, "hostport"); err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// parseSoftware splits the plugins field, "Brand 1.2: PluginA 1.0; PluginB 2.0",
// into brand and plugin list. An empty field means vanilla.
func parseSoftware(version, plugins string) QuerySoftware {
	software := QuerySoftware{Version: version, Brand: "vanilla", Plugins: []string{}}
	if plugins == "" {
		return software
	}

	brand, list, found := strings.Cut(plugins, ":")
	software.Brand = strings.TrimSpace(brand)
	if found {
		for _, plugin := range strings.Split(list, ";") {
			software.Plugins = append(software.Plugins, strings.TrimSpace(plugin))
		}
	}

	return software
}

func intField(raw map[string]string, key string) (int, error) {
	value, ok := raw[key]
	if !ok {
		return 0, fmt.Errorf("%w: query has no %q field", ErrInvalidResponse, key)
	}

	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%w: query field %q=%q is not a number", ErrInvalidResponse, key, value)
	}

	return n, nil
}
