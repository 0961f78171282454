// Package board implements a concurrent, mutable board for the Memory
// Scramble matching game. A grid of face-down cards holds pairs with equal
// values; players flip two cards per move, matched pairs are removed, and
// non-matching pairs turn back face down at the start of the player's next
// move. A face-up card held by one player temporarily blocks any other
// player who tries to flip it.
package board

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// Face is the visibility state of a card.
type Face int

const (
	FaceDown Face = iota
	FaceUp
)

// card is the contents of a non-empty cell.
type card struct {
	value      string
	face       Face
	controller string // player ID, or "" when uncontrolled
}

// cell is one grid position. A nil card means the cell is empty (its matched
// pair was removed); empty is terminal.
type cell struct {
	card    *card
	waiters []*waiter
}

// waiter is a flip parked on a cell held by another player. wake is closed
// exactly once: by a release, by the cell being emptied, or by a cancelled
// waiter handing its consumed wake to the next in line.
type waiter struct {
	player string
	wake   chan struct{}
}

// move tracks one player's progress through a pair of flips. current holds
// the positions the player controls in the open move; prev holds the
// finished move that has not been cleaned up yet.
type move struct {
	current []int
	prev    []int
	matched bool
}

// Board is a grid of cards shared by concurrently flipping players. All
// state is guarded by a single mutex; Flip parks on a per-cell queue when
// its target is held by another player, and Watch parks on a broadcast
// channel that is closed whenever the version counter advances.
type Board struct {
	mu      sync.Mutex
	rows    int
	cols    int
	cells   []cell
	players map[string]*move
	scores  map[string]int // matched pairs per player
	version uint64
	changed chan struct{} // closed and replaced on every version bump
}

// New builds a board from row-major card values. Every value must be
// non-empty and free of whitespace.
func New(rows, cols int, values []string) (*Board, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("board must be at least 1x1, got %dx%d", rows, cols)
	}
	if len(values) != rows*cols {
		return nil, fmt.Errorf("%dx%d board needs %d cards, got %d", rows, cols, rows*cols, len(values))
	}
	b := &Board{
		rows:    rows,
		cols:    cols,
		cells:   make([]cell, rows*cols),
		players: make(map[string]*move),
		scores:  make(map[string]int),
		changed: make(chan struct{}),
	}
	for i, v := range values {
		if !validValue(v) {
			return nil, fmt.Errorf("card %d: value %q is empty or contains whitespace", i, v)
		}
		b.cells[i].card = &card{value: v, face: FaceDown}
	}
	return b, nil
}

// Size returns the board dimensions.
func (b *Board) Size() (rows, cols int) {
	return b.rows, b.cols
}

// Version returns the current change counter. It increases whenever a card
// turns, is removed or gets a new value, and at the end of every move. Taking
// control of a card that is already face up does not advance it by itself.
func (b *Board) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

// Remaining returns the number of cards still on the board.
func (b *Board) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for i := range b.cells {
		if b.cells[i].card != nil {
			n++
		}
	}
	return n
}

// Scores returns the number of matched pairs per player. The map is a copy.
func (b *Board) Scores() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]int, len(b.scores))
	for id, pairs := range b.scores {
		out[id] = pairs
	}
	return out
}

// Look returns the board as seen by player: one line of dimensions, then one
// line per cell in row-major order ("none", "down", "up <value>", or
// "my <value>" for cards the player controls). It never blocks and never
// mutates.
func (b *Board) Look(player string) (string, error) {
	if err := checkPlayerID(player); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.look(player), nil
}

func (b *Board) look(player string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%dx%d", b.rows, b.cols)
	for i := range b.cells {
		sb.WriteByte('\n')
		c := b.cells[i].card
		switch {
		case c == nil:
			sb.WriteString("none")
		case c.face == FaceDown:
			sb.WriteString("down")
		case c.controller == player:
			sb.WriteString("my ")
			sb.WriteString(c.value)
		default:
			sb.WriteString("up ")
			sb.WriteString(c.value)
		}
	}
	return sb.String()
}

// Flip attempts the player's next flip: the first card of a move when the
// player holds nothing, otherwise the second. A first flip whose target is
// held by another player blocks until the card is released or removed; ctx
// cancels the wait. A second flip never blocks. On success Flip returns the
// player's view of the board; on failure it returns an error matching one of
// the package's Err values, with any rule-mandated side effects applied.
func (b *Board) Flip(ctx context.Context, player string, row, col int) (string, error) {
	if err := checkPlayerID(player); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if row < 0 || row >= b.rows || col < 0 || col >= b.cols {
		return "", fmt.Errorf("position %d,%d: %w", row, col, ErrCoordinates)
	}
	pos := row*b.cols + col

	m, ok := b.players[player]
	if !ok {
		m = &move{}
		b.players[player] = m
	}

	var err error
	if len(m.current) == 0 {
		b.cleanup(m)
		err = b.flipFirst(ctx, player, m, pos)
	} else {
		err = b.flipSecond(player, m, pos)
	}
	if err != nil {
		return "", err
	}
	return b.look(player), nil
}

// cleanup applies the deferred actions of the player's finished move before
// a first flip: a matched pair is removed from the board; a non-matching
// pair turns back face down unless another player has claimed a card in the
// meantime.
func (b *Board) cleanup(m *move) {
	if len(m.prev) == 0 {
		return
	}
	dirty := false
	for _, pos := range m.prev {
		c := &b.cells[pos]
		if c.card == nil {
			continue
		}
		if m.matched {
			b.remove(pos)
			dirty = true
		} else if c.card.face == FaceUp && c.card.controller == "" {
			c.card.face = FaceDown
			dirty = true
		}
	}
	m.prev = nil
	m.matched = false
	if dirty {
		b.bump()
	}
}

// flipFirst turns the player's first card. If the target is held by another
// player it parks on the cell's queue, releasing the board lock, and
// re-evaluates from scratch on every wake. Called and returns with the lock
// held.
func (b *Board) flipFirst(ctx context.Context, player string, m *move, pos int) error {
	for {
		c := &b.cells[pos]
		if c.card == nil {
			return fmt.Errorf("position %d,%d: %w", pos/b.cols, pos%b.cols, ErrNoCard)
		}
		if c.card.controller == "" {
			if c.card.face == FaceDown {
				c.card.face = FaceUp
				b.bump()
			}
			c.card.controller = player
			m.current = append(m.current, pos)
			return nil
		}

		w := &waiter{player: player, wake: make(chan struct{})}
		c.waiters = append(c.waiters, w)
		b.mu.Unlock()
		select {
		case <-w.wake:
			b.mu.Lock()
		case <-ctx.Done():
			b.mu.Lock()
			b.dropWaiter(pos, w)
			return ctx.Err()
		}
	}
}

// flipSecond turns the player's second card. It never blocks: a target that
// is the same cell, empty, or held by another player fails the move, and the
// first card is released face up.
func (b *Board) flipSecond(player string, m *move, pos int) error {
	first := m.current[0]
	row, col := pos/b.cols, pos%b.cols

	if pos == first {
		b.release(first)
		b.endMove(m, []int{first}, false)
		return fmt.Errorf("position %d,%d flipped twice in one move: %w", row, col, ErrControlled)
	}
	c := &b.cells[pos]
	if c.card == nil {
		b.release(first)
		b.endMove(m, []int{first}, false)
		return fmt.Errorf("position %d,%d: %w", row, col, ErrNoCard)
	}
	if c.card.controller != "" {
		b.release(first)
		b.endMove(m, []int{first}, false)
		return fmt.Errorf("position %d,%d: %w", row, col, ErrControlled)
	}

	if c.card.face == FaceDown {
		c.card.face = FaceUp
		b.bump()
	}
	if c.card.value == b.cells[first].card.value {
		// Matched. The pair is briefly held, then both cards are released
		// face up; they are removed at the start of the player's next move.
		c.card.controller = player
		m.current = append(m.current, pos)
		b.release(pos)
		b.release(first)
		// A matched pair is still on the board until its matcher's cleanup
		// runs, so another player can match the same cards again. The pair
		// transfers to the new matcher but is only ever scored once.
		rescored := b.claimMatched(m, first, pos)
		b.endMove(m, []int{first, pos}, true)
		if !rescored {
			b.scores[player]++
		}
	} else {
		b.release(first)
		b.endMove(m, []int{first, pos}, false)
	}
	return nil
}

// claimMatched strips first and pos from every other player's matched,
// not-yet-cleaned move, so each matched card awaits removal under exactly
// one player. Reports whether a card was stolen from an already scored pair.
func (b *Board) claimMatched(m *move, first, pos int) bool {
	stolen := false
	for _, other := range b.players {
		if other == m || !other.matched || len(other.prev) == 0 {
			continue
		}
		kept := other.prev[:0]
		for _, p := range other.prev {
			if p == first || p == pos {
				stolen = true
			} else {
				kept = append(kept, p)
			}
		}
		other.prev = kept
	}
	return stolen
}

// endMove records the finished move for deferred cleanup and bumps the
// version counter.
func (b *Board) endMove(m *move, prev []int, matched bool) {
	m.current = nil
	m.prev = prev
	m.matched = matched
	b.bump()
}

// release clears the controller of pos and wakes the next waiter, if any.
func (b *Board) release(pos int) {
	b.cells[pos].card.controller = ""
	b.wakeOne(pos)
}

func (b *Board) wakeOne(pos int) {
	c := &b.cells[pos]
	if len(c.waiters) > 0 {
		close(c.waiters[0].wake)
		c.waiters = c.waiters[1:]
	}
}

// remove empties pos. A player who claimed the card after the match loses
// it: their controller reference and open-move entry are dropped. Every flip
// parked on the cell wakes; each will find the card gone and fail.
func (b *Board) remove(pos int) {
	c := &b.cells[pos]
	if c.card.controller != "" {
		if m := b.players[c.card.controller]; m != nil {
			for i, p := range m.current {
				if p == pos {
					m.current = append(m.current[:i], m.current[i+1:]...)
					break
				}
			}
		}
	}
	c.card = nil
	for _, w := range c.waiters {
		close(w.wake)
	}
	c.waiters = nil
}

// dropWaiter removes a cancelled waiter from pos's queue. If the waiter was
// already woken, its wake would otherwise be lost, so it is handed to the
// next waiter when the cell is still free.
func (b *Board) dropWaiter(pos int, w *waiter) {
	c := &b.cells[pos]
	for i, x := range c.waiters {
		if x == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
	if c.card != nil && c.card.controller == "" {
		b.wakeOne(pos)
	}
}

// Watch blocks until the board changes from what it is now, then returns the
// player's fresh view. Every advance of the version counter (see Version)
// wakes all watchers, including advances caused by the watching player's own
// flips.
func (b *Board) Watch(ctx context.Context, player string) (string, error) {
	if err := checkPlayerID(player); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	v0 := b.version
	for b.version == v0 {
		ch := b.changed
		b.mu.Unlock()
		select {
		case <-ch:
			b.mu.Lock()
		case <-ctx.Done():
			b.mu.Lock()
			return "", ctx.Err()
		}
	}
	return b.look(player), nil
}

// Map rewrites every card's value through f, preserving pairwise equality:
// cards with equal values before Map have equal values after. The board lock
// is held for the entire call, including across f, so concurrent flips see
// only the pre-map or post-map grid. If f fails or produces an empty or
// whitespace-containing value, Map returns without rewriting any cell.
func (b *Board) Map(f func(string) (string, error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	mapped := make(map[string]string)
	for i := range b.cells {
		c := b.cells[i].card
		if c == nil {
			continue
		}
		if _, ok := mapped[c.value]; ok {
			continue
		}
		out, err := f(c.value)
		if err != nil {
			return fmt.Errorf("transform %q: %w", c.value, err)
		}
		if !validValue(out) {
			return fmt.Errorf("transform %q produced %q: %w", c.value, out, ErrMappedValue)
		}
		mapped[c.value] = out
	}

	dirty := false
	for i := range b.cells {
		c := b.cells[i].card
		if c == nil {
			continue
		}
		if next := mapped[c.value]; next != c.value {
			c.value = next
			dirty = true
		}
	}
	if dirty {
		b.bump()
	}
	return nil
}

// bump advances the version counter and wakes all watchers. Caller holds the
// lock.
func (b *Board) bump() {
	b.version++
	close(b.changed)
	b.changed = make(chan struct{})
}

var playerIDPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func checkPlayerID(id string) error {
	if !playerIDPattern.MatchString(id) {
		return fmt.Errorf("player id %q: %w", id, ErrPlayerID)
	}
	switch id {
	case "none", "down", "up", "my":
		return fmt.Errorf("player id %q is a reserved word: %w", id, ErrPlayerID)
	}
	return nil
}

func validValue(v string) bool {
	return v != "" && !strings.ContainsFunc(v, unicode.IsSpace)
}
