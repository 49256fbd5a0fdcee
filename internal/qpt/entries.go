package qpt

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	trailingParen = regexp.MustCompile(`\s*\([^()]*\)\s*$`)
	spaces        = regexp.MustCompile(`\s+`)
)

// TaskKey is the decimal task id when one is known, else the trimmed task
// name. Empty when neither is available.
func TaskKey(taskID *int, taskName string) string {
	if taskID != nil && *taskID > 0 {
		return strconv.Itoa(*taskID)
	}
	return strings.TrimSpace(taskName)
}

// NormalizeLabel is the visible-label identity of a task: case-insensitive,
// trimmed, trailing parenthetical suffixes removed.
//
//	"Fresamento (2ª fase) " -> "fresamento"
func NormalizeLabel(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	for {
		stripped := trailingParen.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	return spaces.ReplaceAllString(strings.TrimSpace(s), " ")
}

func isNumericKey(key string) bool {
	_, err := strconv.Atoi(key)
	return err == nil
}

func entryLabel(key string, e Entry) string {
	if e.Task != "" {
		return NormalizeLabel(e.Task)
	}
	return NormalizeLabel(key)
}

// normalize keeps one entry per visible label. Numeric keys beat name keys;
// between keys of the same kind the higher quantity wins. The survivor carries
// the highest quantity of its group so the label never regresses.
func normalize(in Entries) Entries {
	out := make(Entries, len(in))
	groups := make(map[string][]string)
	for k, e := range in {
		label := entryLabel(k, e)
		groups[label] = append(groups[label], k)
	}

	for _, keys := range groups {
		winner := keys[0]
		best := 0
		for _, k := range keys {
			if in[k].Qty > best {
				best = in[k].Qty
			}
			if better(k, in[k], winner, in[winner]) {
				winner = k
			}
		}
		e := in[winner]
		e.Qty = best
		out[winner] = e
	}
	return out
}

func better(k string, e Entry, cur string, ce Entry) bool {
	kNum, curNum := isNumericKey(k), isNumericKey(cur)
	if kNum != curNum {
		return kNum
	}
	if e.Qty != ce.Qty {
		return e.Qty > ce.Qty
	}
	return k < cur
}

// union takes the per-key maximum of two entry sets.
func union(a, b Entries) Entries {
	out := a.clone()
	for k, e := range b {
		cur, ok := out[k]
		if !ok {
			out[k] = e
			continue
		}
		if e.Qty > cur.Qty {
			cur.Qty = e.Qty
		}
		if cur.Task == "" {
			cur.Task = e.Task
		}
		out[k] = cur
	}
	return out
}

func (e Entries) clone() Entries {
	out := make(Entries, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

func (e Entries) equal(o Entries) bool {
	if len(e) != len(o) {
		return false
	}
	for k, v := range e {
		if ov, ok := o[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (e Entries) items() []Item {
	items := make([]Item, 0, len(e))
	for k, v := range normalize(e) {
		items = append(items, Item{Key: k, Task: v.Task, Qty: v.Qty})
	}
	sort.Slice(items, func(i, j int) bool {
		li, lj := NormalizeLabel(items[i].Task), NormalizeLabel(items[j].Task)
		if li != lj {
			return li < lj
		}
		return items[i].Key < items[j].Key
	})
	return items
}

// Signature identifies a rendered list; equal signatures render identically.
func Signature(items []Item) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString(it.Key)
		b.WriteByte('=')
		b.WriteString(it.Task)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(it.Qty))
		b.WriteByte(';')
	}
	return b.String()
}
