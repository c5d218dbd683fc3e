package render

import (
	"townwatch/internal/snapshot"
	"townwatch/internal/stream"
)

// DefaultToolMessage is shown for healthy tools that report no message.
const DefaultToolMessage = "Tool operational."

// Stats are the aggregate counts of the stats bar.
type Stats struct {
	Tools   int `json:"tools"`
	Plugins int `json:"plugins"`
	Domains int `json:"domains"`
}

// ToolCard is one tool in the tools grid.
type ToolCard struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// PluginItem is a plugin and its dependencies inside a domain card.
type PluginItem struct {
	Name         string   `json:"name"`
	Dependencies []string `json:"dependencies"`
}

// DomainCard is one accordion entry.
type DomainCard struct {
	Name    string       `json:"name"`
	Open    bool         `json:"open"`
	Plugins []PluginItem `json:"plugins"`
}

// Indicator is the connection badge.
type Indicator struct {
	State  string `json:"state"`
	Online bool   `json:"online"`
	Label  string `json:"label"`
}

// SnapshotStats counts tools, plugins and distinct declared domains. Plugins
// without a domain do not add to the domain count.
func SnapshotStats(s snapshot.SystemSnapshot) Stats {
	domains := make(map[string]struct{})
	for _, p := range s.Plugins {
		if p.Value.Domain != "" {
			domains[p.Value.Domain] = struct{}{}
		}
	}
	return Stats{
		Tools:   len(s.Tools),
		Plugins: len(s.Plugins),
		Domains: len(domains),
	}
}

// Tools renders the tool cards in snapshot order.
func Tools(tools snapshot.Entries[snapshot.ToolStatus]) []ToolCard {
	out := make([]ToolCard, 0, len(tools))
	for _, t := range tools {
		msg := t.Value.Message
		if msg == "" {
			msg = DefaultToolMessage
		}
		out = append(out, ToolCard{Name: t.Name, OK: t.Value.OK(), Message: msg})
	}
	return out
}

// Domains renders the accordion. open reports whether a card is expanded.
func Domains(plugins snapshot.Entries[snapshot.PluginInfo], open func(name string) bool) []DomainCard {
	groups := GroupDomains(plugins)
	out := make([]DomainCard, 0, len(groups))
	for _, g := range groups {
		card := DomainCard{Name: g.Name, Plugins: make([]PluginItem, 0, len(g.Plugins))}
		if open != nil {
			card.Open = open(g.Name)
		}
		for _, p := range g.Plugins {
			deps := p.Value.Dependencies
			if deps == nil {
				deps = []string{}
			}
			card.Plugins = append(card.Plugins, PluginItem{Name: p.Name, Dependencies: deps})
		}
		out = append(out, card)
	}
	return out
}

// FirstDomain returns the name of the first accordion card, if any.
func FirstDomain(plugins snapshot.Entries[snapshot.PluginInfo]) (string, bool) {
	groups := GroupDomains(plugins)
	if len(groups) == 0 {
		return "", false
	}
	return groups[0].Name, true
}

// ConnectionIndicator renders the connection badge for a stream state.
func ConnectionIndicator(s stream.State) Indicator {
	switch s {
	case stream.Connected:
		return Indicator{State: s.String(), Online: true, Label: "Live"}
	case stream.Connecting:
		return Indicator{State: s.String(), Label: "Connecting"}
	default:
		return Indicator{State: s.String(), Label: "Disconnected"}
	}
}
