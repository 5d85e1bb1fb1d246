// Package nodes converts between the admin-facing node list text format and
// structured node records.
//
// The line format is one node per line:
//
//	<host>:<port>#<REGION> <name> <latency>ms
//
// The codec is deliberately lossy: region labels round-trip through the code
// table rather than the original string, and malformed lines are dropped.
package nodes

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/nebulink/vpn-platform/subscribe-service/internal/models"
)

// Defaults applied by Format when a node is missing fields.
const (
	DefaultHost       = "0.0.0.0"
	DefaultPort       = 2053
	DefaultName       = "未知节点"
	DefaultRegionCode = "SG"
)

// regionNames maps region codes to display labels. Unrecognized codes pass
// through verbatim as the label.
var regionNames = map[string]string{
	"SG": "新加坡",
	"HK": "香港",
	"TW": "台湾",
	"JP": "日本",
	"KR": "韩国",
	"US": "美国",
	"GB": "英国",
	"DE": "德国",
	"FR": "法国",
	"NL": "荷兰",
	"RU": "俄罗斯",
	"CA": "加拿大",
	"AU": "澳大利亚",
	"IN": "印度",
	"MY": "马来西亚",
	"TH": "泰国",
	"VN": "越南",
	"TR": "土耳其",
}

// regionCodes is the reverse lookup, label -> code.
var regionCodes = func() map[string]string {
	m := make(map[string]string, len(regionNames))
	for code, name := range regionNames {
		m[name] = code
	}
	return m
}()

// Parse decodes the line format into node records. Malformed lines are
// skipped with a logged warning; they are not reported to the caller.
// Node IDs are assigned as 1-based positions among successfully parsed lines.
func Parse(text string) []models.Node {
	var result []models.Node
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		node, err := parseLine(line)
		if err != nil {
			log.Printf("[nodes] skipping malformed line %d: %v", i+1, err)
			continue
		}

		node.ID = len(result) + 1
		result = append(result, node)
	}
	return result
}

func parseLine(line string) (models.Node, error) {
	addr, rest, ok := strings.Cut(line, "#")
	if !ok {
		return models.Node{}, fmt.Errorf("missing '#' separator in %q", line)
	}

	host, portStr, ok := strings.Cut(strings.TrimSpace(addr), ":")
	if !ok {
		return models.Node{}, fmt.Errorf("missing ':' in address %q", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return models.Node{}, fmt.Errorf("non-numeric port %q", portStr)
	}

	// rest is "<regionCode> <name...> <latency>ms"; the name may itself
	// contain spaces, so take the first and last fields.
	fields := strings.Fields(rest)
	if len(fields) < 3 {
		return models.Node{}, fmt.Errorf("expected region, name and latency in %q", rest)
	}

	latencyField := fields[len(fields)-1]
	if !strings.HasSuffix(latencyField, "ms") {
		return models.Node{}, fmt.Errorf("latency %q missing ms suffix", latencyField)
	}
	latency, err := strconv.Atoi(strings.TrimSuffix(latencyField, "ms"))
	if err != nil {
		return models.Node{}, fmt.Errorf("non-numeric latency %q", latencyField)
	}

	code := fields[0]
	region, ok := regionNames[code]
	if !ok {
		region = code
	}

	return models.Node{
		Host:       host,
		Port:       port,
		Name:       strings.Join(fields[1:len(fields)-1], " "),
		Region:     region,
		RegionCode: code,
		Latency:    latency,
	}, nil
}

// ParseAny accepts either a raw JSON array of node objects or the line
// format, trying JSON first.
func ParseAny(text string) []models.Node {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var parsed []models.Node
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			for i := range parsed {
				if parsed[i].ID == 0 {
					parsed[i].ID = i + 1
				}
				if parsed[i].Region == "" {
					if name, ok := regionNames[parsed[i].RegionCode]; ok {
						parsed[i].Region = name
					} else {
						parsed[i].Region = parsed[i].RegionCode
					}
				}
			}
			return parsed
		}
	}

	return Parse(trimmed)
}

// Format encodes node records back into the line format, one line per node.
// Missing fields get defaults; the region label is reverse-mapped to a code,
// falling back to the node's stored code and finally to SG.
func Format(nodeList []models.Node) string {
	lines := make([]string, 0, len(nodeList))
	for _, n := range nodeList {
		host := n.Host
		if host == "" {
			host = DefaultHost
		}
		port := n.Port
		if port == 0 {
			port = DefaultPort
		}
		name := n.Name
		if name == "" {
			name = DefaultName
		}

		code, ok := regionCodes[n.Region]
		if !ok {
			code = n.RegionCode
		}
		if code == "" {
			code = DefaultRegionCode
		}

		latency := n.Latency
		if latency < 0 {
			latency = 0
		}

		lines = append(lines, fmt.Sprintf("%s:%d#%s %s %dms", host, port, code, name, latency))
	}
	return strings.Join(lines, "\n")
}
