// Package event defines the typed envelope for live-stream events and the
// tolerant decoding of feed frames. Relay implementations differ in field
// naming and nesting (user object vs. top-level fields, snake_case vs.
// camelCase, numeric vs. string gift ids), so decoding normalizes all known
// shapes into one envelope and keeps everything else in an open bag.
package event

import (
	"crypto/sha1" //nolint:gosec // G505: dedupe signatures, not security
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Known event types emitted by the live feed.
const (
	TypeChat      = "chat"
	TypeGift      = "gift"
	TypeFollow    = "follow"
	TypeShare     = "share"
	TypeLike      = "like"
	TypeJoin      = "join"
	TypeSubscribe = "subscribe"
)

// User identifies the viewer an event originated from.
type User struct {
	UniqueID string `json:"uniqueId"`
	Nickname string `json:"nickname"`
}

// Gift describes the gift attached to a TypeGift event.
type Gift struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RepeatCount int    `json:"repeatCount"`
	DiamondCost int    `json:"diamondCost"`
}

// Event is the envelope handed to gates and sinks. Typed fields cover the
// known event types; Extra carries any additional fields the feed sent so
// rules can condition on them without schema changes here.
type Event struct {
	Type       string         `json:"type"`
	User       User           `json:"user"`
	Comment    string         `json:"comment,omitempty"`
	Gift       *Gift          `json:"gift,omitempty"`
	LikeCount  int            `json:"likeCount,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`
	ReceivedAt time.Time      `json:"receivedAt"`
}

// Fields flattens the envelope into the string-keyed bag the rule evaluator
// reads. Typed fields win over Extra entries of the same name.
func (e *Event) Fields() map[string]any {
	out := make(map[string]any, len(e.Extra)+8)
	for k, v := range e.Extra {
		out[k] = v
	}
	out["type"] = e.Type
	if e.User.UniqueID != "" {
		out["uniqueId"] = e.User.UniqueID
	}
	if e.User.Nickname != "" {
		out["nickname"] = e.User.Nickname
	}
	if e.Comment != "" {
		out["comment"] = e.Comment
	}
	if e.Gift != nil {
		out["giftId"] = e.Gift.ID
		out["giftName"] = e.Gift.Name
		out["repeatCount"] = e.Gift.RepeatCount
		if e.Gift.DiamondCost > 0 {
			out["diamondCost"] = e.Gift.DiamondCost
		}
	}
	if e.LikeCount > 0 {
		out["likeCount"] = e.LikeCount
	}
	return out
}

// Signature returns a stable digest used by the deduper to suppress
// replayed frames. It covers the fields that distinguish one logical event
// from a retransmission of the same one.
func (e *Event) Signature() string {
	raw := e.Type + "|" + e.User.UniqueID
	switch e.Type {
	case TypeChat:
		raw += "|" + e.Comment
	case TypeGift:
		if e.Gift != nil {
			raw += "|" + e.Gift.ID + "|" + strconv.Itoa(e.Gift.RepeatCount)
		}
	case TypeLike:
		raw += "|" + strconv.Itoa(e.LikeCount)
	}
	sum := sha1.Sum([]byte(raw)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// Decode parses one feed frame. Unknown event types are not an error; they
// decode into an envelope whose Extra bag holds every field.
func Decode(frame []byte) (*Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(frame, &raw); err != nil {
		return nil, fmt.Errorf("decode event frame: %w", err)
	}
	typ := pickString(raw, "type", "event", "eventType")
	if typ == "" {
		return nil, fmt.Errorf("decode event frame: missing type")
	}

	e := &Event{Type: typ, ReceivedAt: time.Now().UTC()}

	// User may be nested or flattened onto the frame.
	userSrc := raw
	if u, ok := raw["user"].(map[string]any); ok {
		userSrc = u
	}
	e.User.UniqueID = pickString(userSrc, "uniqueId", "unique_id", "userId", "id")
	e.User.Nickname = pickString(userSrc, "nickname", "nickName", "displayName")
	if e.User.Nickname == "" {
		e.User.Nickname = e.User.UniqueID
	}

	switch typ {
	case TypeChat:
		e.Comment = pickString(raw, "comment", "message", "text")
	case TypeGift:
		giftSrc := raw
		if g, ok := raw["gift"].(map[string]any); ok {
			giftSrc = g
		}
		e.Gift = &Gift{
			ID:          pickString(giftSrc, "giftId", "gift_id", "id"),
			Name:        pickString(giftSrc, "giftName", "gift_name", "name"),
			RepeatCount: pickInt(raw, "repeatCount", "repeat_count", "count"),
			DiamondCost: pickInt(giftSrc, "diamondCost", "diamond_cost", "diamondCount"),
		}
		if e.Gift.RepeatCount == 0 {
			e.Gift.RepeatCount = pickInt(giftSrc, "repeatCount", "repeat_count")
		}
		if e.Gift.RepeatCount <= 0 {
			e.Gift.RepeatCount = 1
		}
	case TypeLike:
		e.LikeCount = pickInt(raw, "likeCount", "like_count", "count")
		if e.LikeCount <= 0 {
			e.LikeCount = 1
		}
	}

	// Everything not folded into typed fields stays available to rules.
	e.Extra = extraFields(raw)
	return e, nil
}

var consumedKeys = map[string]bool{
	"type": true, "event": true, "eventType": true,
	"user": true, "uniqueId": true, "unique_id": true, "userId": true, "id": true,
	"nickname": true, "nickName": true, "displayName": true,
	"comment": true, "message": true, "text": true,
	"gift": true, "giftId": true, "gift_id": true, "giftName": true, "gift_name": true,
	"repeatCount": true, "repeat_count": true, "count": true,
	"diamondCost": true, "diamond_cost": true, "diamondCount": true,
	"likeCount": true, "like_count": true,
}

func extraFields(raw map[string]any) map[string]any {
	var out map[string]any
	for k, v := range raw {
		if consumedKeys[k] {
			continue
		}
		if out == nil {
			out = make(map[string]any)
		}
		out[k] = v
	}
	return out
}

// pickString returns the first present key rendered as a string. Numeric
// ids are common in relay output and normalize to their decimal form.
func pickString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
	}
	return ""
}

func pickInt(m map[string]any, keys ...string) int {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			return int(t)
		case string:
			if n, err := strconv.Atoi(t); err == nil {
				return n
			}
		}
	}
	return 0
}
