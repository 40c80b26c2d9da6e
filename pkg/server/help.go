package server

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"
)

// HelpTopics holds extra help entries read from help.txt. Entries start
// with a "& topic" line; consecutive "&" lines are aliases for one body.
type HelpTopics struct {
	Entries map[string]string // lowercase topic -> text
}

// ParseHelp reads help entries from r.
func ParseHelp(r io.Reader) (*HelpTopics, error) {
	ht := &HelpTopics{Entries: make(map[string]string)}
	var topics []string
	var buf strings.Builder

	save := func() {
		text := strings.TrimRight(buf.String(), "\n ")
		for _, t := range topics {
			ht.Entries[strings.ToLower(t)] = text
		}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if topic, ok := strings.CutPrefix(line, "& "); ok {
			topic = strings.TrimSpace(topic)
			if buf.Len() == 0 && len(topics) > 0 {
				topics = append(topics, topic)
				continue
			}
			save()
			topics = []string{topic}
			buf.Reset()
			continue
		}
		if len(topics) > 0 {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
	save()
	return ht, scanner.Err()
}

// Lookup finds an entry by exact name, then by the shortest topic the
// name is a prefix of. A name with * or ? lists the matching topics.
func (ht *HelpTopics) Lookup(topic string) (string, bool) {
	if ht == nil {
		return "", false
	}
	topic = strings.ToLower(strings.TrimSpace(topic))

	if strings.ContainsAny(topic, "*?") {
		var matches []string
		for key := range ht.Entries {
			if ok, _ := path.Match(topic, key); ok {
				matches = append(matches, key)
			}
		}
		if len(matches) == 0 {
			return "", false
		}
		slices.Sort(matches)
		return fmt.Sprintf("Here are the entries which match '%s':\n  %s", topic, strings.Join(matches, "  ")), true
	}

	if text, ok := ht.Entries[topic]; ok {
		return text, true
	}
	best := ""
	for key := range ht.Entries {
		if strings.HasPrefix(key, topic) && (best == "" || len(key) < len(best)) {
			best = key
		}
	}
	if best == "" {
		return "", false
	}
	return ht.Entries[best], true
}
