package render

import (
	"strings"

	"townwatch/internal/snapshot"
)

// GlobalDomain is the bucket for plugins that declare no domain.
const GlobalDomain = "global"

// DomainGroup is the set of plugins sharing a domain, in snapshot order.
type DomainGroup struct {
	Name    string
	Plugins snapshot.Entries[snapshot.PluginInfo]
}

// Window is one plugin inside a building.
type Window struct {
	Domain string `json:"domain"`
	Plugin string `json:"plugin"`
	Label  string `json:"label"`
	Active bool   `json:"active"`
}

// Key identifies the window across renders.
func (w Window) Key() string {
	return w.Domain + "/" + w.Plugin
}

// Building is one domain of the town.
type Building struct {
	Domain  string   `json:"domain"`
	Windows []Window `json:"windows"`
}

// GroupDomains groups plugins by domain. Groups appear in the order their
// first plugin appears.
func GroupDomains(plugins snapshot.Entries[snapshot.PluginInfo]) []DomainGroup {
	var groups []DomainGroup
	index := make(map[string]int)
	for _, p := range plugins {
		domain := p.Value.Domain
		if domain == "" {
			domain = GlobalDomain
		}
		i, ok := index[domain]
		if !ok {
			i = len(groups)
			index[domain] = i
			groups = append(groups, DomainGroup{Name: domain})
		}
		groups[i].Plugins = append(groups[i].Plugins, p)
	}
	return groups
}

// WindowLabel strips the conventional "Plugin" suffix from a plugin name.
func WindowLabel(plugin string) string {
	if label := strings.TrimSuffix(plugin, "Plugin"); label != "" {
		return label
	}
	return plugin
}

// Town renders one building per domain with one window per plugin.
func Town(plugins snapshot.Entries[snapshot.PluginInfo]) []Building {
	groups := GroupDomains(plugins)
	out := make([]Building, 0, len(groups))
	for _, g := range groups {
		b := Building{Domain: g.Name, Windows: make([]Window, 0, len(g.Plugins))}
		for _, p := range g.Plugins {
			b.Windows = append(b.Windows, Window{
				Domain: g.Name,
				Plugin: p.Name,
				Label:  WindowLabel(p.Name),
			})
		}
		out = append(out, b)
	}
	return out
}
