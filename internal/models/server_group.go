package models

import "time"

// ServerGroup is a named pool of proxy nodes plus the panel connection
// details needed to manage them. The raw node list is stored as the
// admin-edited text and parsed on demand by the nodes codec.
type ServerGroup struct {
	ID          string
	Name        string
	PanelAPIURL string
	PanelAPIKey string
	NodeList    string
	NodeCount   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PanelEnabled reports whether panel operations are possible for this group.
// URL and key must both be present; partial configuration disables the panel.
func (g *ServerGroup) PanelEnabled() bool {
	return g.PanelAPIURL != "" && g.PanelAPIKey != ""
}

// Node is one proxy endpoint within a ServerGroup. Nodes are decoded from the
// group's raw node list and are not persisted as their own entity.
type Node struct {
	ID         int    `json:"id"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Name       string `json:"name"`
	Region     string `json:"region"`
	RegionCode string `json:"region_code,omitempty"`
	Status     string `json:"status,omitempty"`
	Latency    int    `json:"latency"`
}
