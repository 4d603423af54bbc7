package counting

import (
	"fmt"
	"log"
	"strconv"
	"time"
)

// Milestone reactions for a successful count.
const (
	ReactCentury = "💯" // every 100
	ReactFifty   = "🎉" // every 50, not 100
	ReactTen     = "🔟" // every 10, not 50/100
	ReactDefault = "✅"
)

// Notifier is the slice of chat operations the game needs. The Discord
// transport implements it; tests use a fake.
type Notifier interface {
	Send(channelID, content string) error
	React(channelID, messageID, emoji string) error
	DirectMessage(userID, content string) error
}

// AccountLinker reports whether a chat user has a linked rotur account.
type AccountLinker interface {
	IsLinked(userID string) bool
}

// Game is the counting-channel state machine. One instance owns the store;
// transitions are serialized by the store's mutex and contain no I/O, so a
// transition is atomic with respect to other transitions.
type Game struct {
	store  *Store
	linker AccountLinker
	notify Notifier
	now    func() time.Time
}

func NewGame(store *Store, linker AccountLinker, notify Notifier) *Game {
	return &Game{
		store:  store,
		linker: linker,
		notify: notify,
		now:    time.Now,
	}
}

// SetClock overrides the time source (for tests).
func (g *Game) SetClock(now func() time.Time) { g.now = now }

type transition int

const (
	transNone transition = iota
	transCommit
	transSameUser
	transWrongSelf
	transReset
)

type outcome struct {
	kind     transition
	count    int    // count after the transition
	expected int    // number that was expected
	got      string // what the author's message evaluated to
	highest  int
}

// HandleMessage runs one counting transition for a message posted in the
// counting channel. It never returns an error: every failure mode is either
// a user notification or a logged persistence warning.
func (g *Game) HandleMessage(channelID, messageID, authorID, authorName, content string) {
	if !g.linker.IsLinked(authorID) {
		g.notifyUser(authorID, channelID,
			"You need a linked rotur account to join the counting game. Link one first, then try again.")
		return
	}

	v, ok := Eval(content)
	if !ok {
		// Chatter in the counting channel is consumed silently.
		return
	}

	var out outcome
	err := g.store.Mutate(channelID, func(st *ChannelState) {
		expected := st.CurrentCount + 1
		user := st.Users[authorID]
		if user == nil {
			user = &UserStats{}
			st.Users[authorID] = user
		}
		user.LastSeen = g.now().Unix()

		if v == float64(expected) {
			if st.LastUser == authorID {
				out = outcome{kind: transSameUser, count: st.CurrentCount, expected: expected}
				return
			}
			st.CurrentCount = expected
			st.LastUser = authorID
			st.LastCountMessageID = messageID
			st.LastCountValue = expected
			st.TotalCounts++
			user.Counts++
			if st.CurrentCount > st.HighestCount {
				st.HighestCount = st.CurrentCount
			}
			out = outcome{kind: transCommit, count: st.CurrentCount}
			return
		}

		got := formatNumber(v)
		if st.LastUser == authorID {
			// Self-correction before anyone else counted: no reset.
			user.WrongAttempts++
			out = outcome{kind: transWrongSelf, count: st.CurrentCount, expected: expected, got: got}
			return
		}

		old := st.CurrentCount
		st.CurrentCount = 0
		st.LastUser = ""
		st.LastCountMessageID = ""
		st.LastCountValue = 0
		st.Resets++
		user.Fails++
		out = outcome{kind: transReset, count: old, expected: expected, got: got, highest: st.HighestCount}
	})
	if err != nil {
		log.Printf("[counting] persist warning: %v", err)
	}

	switch out.kind {
	case transCommit:
		if err := g.notify.React(channelID, messageID, reactionFor(out.count)); err != nil {
			log.Printf("[counting] react warning: %v", err)
		}
	case transSameUser:
		g.notifyUser(authorID, channelID,
			fmt.Sprintf("You can't count twice in a row! The next number is still **%d**. Wait for someone else.", out.expected))
	case transWrongSelf:
		g.send(channelID, fmt.Sprintf(
			"⚠️ %s said %s, but the next number is still **%d**. No reset since they already held the count.",
			authorName, out.got, out.expected))
	case transReset:
		g.send(channelID, fmt.Sprintf(
			"❌ %s broke the chain at **%d**! They said %s but the next number was %d. Back to 0. High score: %d.",
			authorName, out.count, out.got, out.expected, out.highest))
	}
}

// HandleDelete reconciles the deletion of the message that produced the
// current count: the count rolls back so the deleted number must be said
// again.
func (g *Game) HandleDelete(channelID, messageID string) {
	if g.store.Snapshot(channelID) == nil {
		return
	}

	var announced string
	err := g.store.Mutate(channelID, func(st *ChannelState) {
		if st.LastCountMessageID == "" || st.LastCountMessageID != messageID {
			return
		}
		if st.LastCountValue <= 0 {
			announced = fmt.Sprintf(
				"A counted message was deleted but its value is unknown, so the count stays at **%d**.", st.CurrentCount)
			return
		}
		value := st.LastCountValue
		st.CurrentCount = value - 1
		if st.CurrentCount < 0 {
			st.CurrentCount = 0
		}
		st.LastCountMessageID = ""
		st.LastCountValue = 0
		st.LastUser = ""
		announced = fmt.Sprintf("A counted message was deleted. The next number is **%d**.", value)
	})
	if err != nil {
		log.Printf("[counting] persist warning: %v", err)
	}
	if announced != "" {
		g.send(channelID, announced)
	}
}

// HandleEdit treats an edit that changes the tracked last-count message away
// from its recorded value like a deletion of that message.
func (g *Game) HandleEdit(channelID, messageID, newContent string) {
	st := g.store.Snapshot(channelID)
	if st == nil || st.LastCountMessageID != messageID {
		return
	}
	if v, ok := Eval(newContent); ok && v == float64(st.LastCountValue) {
		return
	}
	g.HandleDelete(channelID, messageID)
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func reactionFor(count int) string {
	switch {
	case count%100 == 0:
		return ReactCentury
	case count%50 == 0:
		return ReactFifty
	case count%10 == 0:
		return ReactTen
	default:
		return ReactDefault
	}
}

func (g *Game) send(channelID, content string) {
	if err := g.notify.Send(channelID, content); err != nil {
		log.Printf("[counting] send warning: %v", err)
	}
}

// notifyUser prefers a DM and falls back to the channel.
func (g *Game) notifyUser(userID, channelID, content string) {
	if err := g.notify.DirectMessage(userID, content); err != nil {
		g.send(channelID, content)
	}
}
