// Package sanitize rejects submissions before anything reaches the disk.
package sanitize

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// ContentViolation is returned when submitted code must not be executed.
type ContentViolation struct {
	Message string
	Details string
	Word    string
}

func (e *ContentViolation) Error() string {
	return e.Message + ": " + e.Details
}

type trieNode struct {
	children map[rune]*trieNode
	fail     *trieNode
	// out is the nearest node on the fail chain that ends a word.
	out  *trieNode
	word string
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[rune]*trieNode)}
}

// ContentGuard matches code against a fixed banned-word set in one pass.
// It is immutable once built and safe for concurrent use.
type ContentGuard struct {
	root          *trieNode
	words         int
	maxCodeLength int
}

// NewContentGuard builds the matcher. Blank entries are ignored.
// A maxCodeLength of zero disables the length check.
func NewContentGuard(words []string, maxCodeLength int) *ContentGuard {
	g := &ContentGuard{root: newTrieNode(), maxCodeLength: maxCodeLength}
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if g.insert(w) {
			g.words++
		}
	}
	g.link()
	return g
}

// LoadContentGuard reads one banned word per line from path.
func LoadContentGuard(path string, maxCodeLength int) (*ContentGuard, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open banned words: %w", err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		words = append(words, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read banned words: %w", err)
	}
	return NewContentGuard(words, maxCodeLength), nil
}

// Len returns the number of distinct banned words.
func (g *ContentGuard) Len() int {
	return g.words
}

func (g *ContentGuard) insert(word string) bool {
	node := g.root
	for _, r := range word {
		next, ok := node.children[r]
		if !ok {
			next = newTrieNode()
			node.children[r] = next
		}
		node = next
	}
	if node.word != "" {
		return false
	}
	node.word = word
	return true
}

// link wires failure and output links breadth first.
func (g *ContentGuard) link() {
	queue := make([]*trieNode, 0, len(g.root.children))
	for _, child := range g.root.children {
		child.fail = g.root
		queue = append(queue, child)
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for r, child := range node.children {
			fail := node.fail
			for fail != g.root && fail.children[r] == nil {
				fail = fail.fail
			}
			if next, ok := fail.children[r]; ok && next != child {
				child.fail = next
			} else {
				child.fail = g.root
			}
			if child.fail.word != "" {
				child.out = child.fail
			} else {
				child.out = child.fail.out
			}
			queue = append(queue, child)
		}
	}
}

// Scan returns a *ContentViolation for the first banned word found in code,
// or for code longer than the configured limit.
func (g *ContentGuard) Scan(code string) error {
	if g.maxCodeLength > 0 && len(code) > g.maxCodeLength {
		return &ContentViolation{
			Message: "Code length exceeds maximum limit",
			Details: fmt.Sprintf("Max length allowed is %d", g.maxCodeLength),
		}
	}

	node := g.root
	for _, r := range code {
		for node != g.root && node.children[r] == nil {
			node = node.fail
		}
		if next, ok := node.children[r]; ok {
			node = next
		}
		match := node
		if match.word == "" {
			match = node.out
		}
		if match != nil {
			return &ContentViolation{
				Message: "Code contains banned word",
				Details: "[" + match.word + "]",
				Word:    match.word,
			}
		}
	}
	return nil
}
