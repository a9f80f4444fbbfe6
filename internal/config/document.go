package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

type nodeKind int

const (
	kindNull nodeKind = iota
	kindBool
	kindNumber
	kindString
	kindArray
	kindObject
)

// node is a decoded JSON value. Objects keep their members in document order,
// duplicates included.
type node struct {
	kind    nodeKind
	str     string
	num     json.Number
	boolean bool
	members []member
	items   []*node
}

type member struct {
	key   string
	value *node
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeDocument validates data as a single JSON value and decodes it into an
// ordered node tree.
func decodeDocument(data []byte) (*node, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmpty
	}
	if !json.Valid(data) {
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return nil, errors.New("invalid JSON")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return readNode(dec)
}

func readNode(dec *json.Decoder) (*node, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			n := &node{kind: kindObject}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("unexpected object key %v", keyTok)
				}
				value, err := readNode(dec)
				if err != nil {
					return nil, err
				}
				n.members = append(n.members, member{key: key, value: value})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		case '[':
			n := &node{kind: kindArray}
			for dec.More() {
				item, err := readNode(dec)
				if err != nil {
					return nil, err
				}
				n.items = append(n.items, item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return n, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case string:
		return &node{kind: kindString, str: t}, nil
	case json.Number:
		return &node{kind: kindNumber, num: t}, nil
	case bool:
		return &node{kind: kindBool, boolean: t}, nil
	case nil:
		return &node{kind: kindNull}, nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

func (n *node) isString() bool { return n.kind == kindString }
func (n *node) isNull() bool   { return n.kind == kindNull }
func (n *node) isObject() bool { return n.kind == kindObject }

func (n *node) asBool() (bool, bool) {
	if n.kind != kindBool {
		return false, false
	}
	return n.boolean, true
}

func (n *node) asInt() (int, bool) {
	if n.kind != kindNumber {
		return 0, false
	}
	v, err := strconv.ParseInt(n.num.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return int(v), true
}
