// Package render produces client-importable subscription payloads from a
// validated subscription and its node list.
package render

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/nebulink/vpn-platform/subscribe-service/internal/models"
)

// Supported output formats.
const (
	FormatBase64    = "base64"
	FormatClash     = "clash"
	FormatSurfboard = "surfboard"
)

// Fixed transport parameters shared by all emitted proxies.
const (
	wsPath = "/ws"
)

// Result is a rendered payload plus its out-of-band usage header.
type Result struct {
	Body        string
	ContentType string
	// UserInfo is the Subscription-Userinfo header value.
	UserInfo string
}

// Render emits the subscription payload in the requested format. The caller
// must already have established the subscription is active, unexpired and
// panel-validated.
func Render(sub *models.Subscription, nodeList []models.Node, format string) (*Result, error) {
	if format == "" {
		format = FormatBase64
	}

	var body string
	switch format {
	case FormatBase64:
		body = renderBase64(sub, nodeList)
	case FormatClash:
		body = renderClash(sub, nodeList)
	case FormatSurfboard:
		body = renderSurfboard(sub, nodeList)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}

	return &Result{
		Body:        body,
		ContentType: "text/plain; charset=utf-8",
		UserInfo: fmt.Sprintf("upload=0; download=%d; total=%d; expire=%d",
			sub.TrafficUsed, sub.TrafficTotal, sub.ExpiresAt.Unix()),
	}, nil
}

// renderBase64 emits one vless link per node, newline-joined and
// whole-payload Base64 encoded.
func renderBase64(sub *models.Subscription, nodeList []models.Node) string {
	links := make([]string, 0, len(nodeList))
	for _, n := range nodeList {
		links = append(links, vlessLink(sub.Credential, n))
	}
	return base64.StdEncoding.EncodeToString([]byte(strings.Join(links, "\n")))
}

func vlessLink(credential string, n models.Node) string {
	q := url.Values{}
	q.Set("encryption", "none")
	q.Set("security", "tls")
	q.Set("sni", n.Host)
	q.Set("type", "ws")
	q.Set("host", n.Host)
	q.Set("path", wsPath)

	u := url.URL{
		Scheme:   "vless",
		User:     url.User(credential),
		Host:     fmt.Sprintf("%s:%d", n.Host, n.Port),
		RawQuery: q.Encode(),
		Fragment: nodeName(n),
	}
	return u.String()
}

type clashProxy struct {
	Name    string      `json:"name"`
	Type    string      `json:"type"`
	Server  string      `json:"server"`
	Port    int         `json:"port"`
	UUID    string      `json:"uuid"`
	TLS     bool        `json:"tls"`
	Network string      `json:"network"`
	WSOpts  clashWSOpts `json:"ws-opts"`
}

type clashWSOpts struct {
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers"`
}

type clashGroup struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Proxies []string `json:"proxies"`
}

type clashConfig struct {
	Port        int          `json:"port"`
	SocksPort   int          `json:"socks-port"`
	AllowLAN    bool         `json:"allow-lan"`
	Mode        string       `json:"mode"`
	LogLevel    string       `json:"log-level"`
	Proxies     []clashProxy `json:"proxies"`
	ProxyGroups []clashGroup `json:"proxy-groups"`
}

// renderClash emits a commented, pretty-printed structured config with one
// proxy entry per node. Downstream clients key proxies by name, so colliding
// display names are suffixed until unique.
func renderClash(sub *models.Subscription, nodeList []models.Node) string {
	seen := make(map[string]bool)
	proxies := make([]clashProxy, 0, len(nodeList))
	names := make([]string, 0, len(nodeList))

	for _, n := range nodeList {
		name := uniqueName(seen, nodeName(n))
		names = append(names, name)
		proxies = append(proxies, clashProxy{
			Name:    name,
			Type:    "vless",
			Server:  n.Host,
			Port:    n.Port,
			UUID:    sub.Credential,
			TLS:     true,
			Network: "ws",
			WSOpts: clashWSOpts{
				Path:    wsPath,
				Headers: map[string]string{"Host": n.Host},
			},
		})
	}

	cfg := clashConfig{
		Port:      7890,
		SocksPort: 7891,
		AllowLAN:  false,
		Mode:      "rule",
		LogLevel:  "info",
		Proxies:   proxies,
		ProxyGroups: []clashGroup{
			{Name: "PROXY", Type: "select", Proxies: names},
		},
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "// Generated at: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&b, "// Credential: %s\n", sub.Credential)
	fmt.Fprintf(&b, "// Expires at: %s\n", sub.ExpiresAt.Format(time.RFC3339))
	b.Write(data)
	b.WriteString("\n")
	return b.String()
}

// renderSurfboard emits an INI-like line config: one proxy directive per
// node, a proxy group listing every name, and a fixed rule section.
func renderSurfboard(sub *models.Subscription, nodeList []models.Node) string {
	seen := make(map[string]bool)
	names := make([]string, 0, len(nodeList))

	var b strings.Builder
	b.WriteString("[General]\n")
	b.WriteString("loglevel = notify\n")
	b.WriteString("dns-server = system\n")
	b.WriteString("\n[Proxy]\n")

	for _, n := range nodeList {
		name := uniqueName(seen, nodeName(n))
		names = append(names, name)
		fmt.Fprintf(&b, "%s = vless, %s, %d, username=%s, ws=true, tls=true, ws-path=%s, sni=%s\n",
			name, n.Host, n.Port, sub.Credential, wsPath, n.Host)
	}

	b.WriteString("\n[Proxy Group]\n")
	fmt.Fprintf(&b, "PROXY = select, %s\n", strings.Join(names, ", "))

	b.WriteString("\n[Rule]\n")
	b.WriteString("GEOIP,CN,DIRECT\n")
	b.WriteString("FINAL,PROXY\n")
	return b.String()
}

func nodeName(n models.Node) string {
	if n.Name == "" {
		return "未知节点"
	}
	return n.Name
}

// uniqueName suffixes colliding names with an incrementing counter so every
// emitted proxy entry has a distinct identifier.
func uniqueName(seen map[string]bool, name string) string {
	candidate := name
	for i := 1; seen[candidate]; i++ {
		candidate = fmt.Sprintf("%s-%d", name, i)
	}
	seen[candidate] = true
	return candidate
}
