package event

import "testing"

func TestDecodeGiftNestedShape(t *testing.T) {
	frame := []byte(`{"type":"gift","user":{"uniqueId":"pupfan42","nickname":"Pup Fan"},"gift":{"id":5655,"name":"Rose","diamondCount":1},"repeatCount":3}`)
	e, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if e.Type != TypeGift {
		t.Errorf("type = %q", e.Type)
	}
	if e.User.UniqueID != "pupfan42" || e.User.Nickname != "Pup Fan" {
		t.Errorf("user = %+v", e.User)
	}
	if e.Gift == nil || e.Gift.ID != "5655" || e.Gift.Name != "Rose" || e.Gift.RepeatCount != 3 {
		t.Errorf("gift = %+v", e.Gift)
	}
	if e.Gift.DiamondCost != 1 {
		t.Errorf("diamond cost = %d, want 1", e.Gift.DiamondCost)
	}
}

func TestDecodeGiftFlatSnakeCaseShape(t *testing.T) {
	frame := []byte(`{"event":"gift","unique_id":"u9","gift_id":"77","gift_name":"Galaxy","repeat_count":"2"}`)
	e, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if e.Gift == nil || e.Gift.ID != "77" || e.Gift.Name != "Galaxy" || e.Gift.RepeatCount != 2 {
		t.Errorf("gift = %+v", e.Gift)
	}
	if e.User.Nickname != "u9" {
		t.Errorf("nickname should fall back to unique id, got %q", e.User.Nickname)
	}
}

func TestDecodeRepeatCountDefaultsToOne(t *testing.T) {
	e, err := Decode([]byte(`{"type":"gift","uniqueId":"u1","giftId":"5"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if e.Gift.RepeatCount != 1 {
		t.Errorf("repeat count = %d, want 1", e.Gift.RepeatCount)
	}
}

func TestDecodeUnknownTypeKeepsExtras(t *testing.T) {
	e, err := Decode([]byte(`{"type":"envelope_drop","uniqueId":"u1","prize":"gold"}`))
	if err != nil {
		t.Fatalf("unknown type should decode, got %v", err)
	}
	fields := e.Fields()
	if fields["type"] != "envelope_drop" {
		t.Errorf("type field = %v", fields["type"])
	}
	if fields["prize"] != "gold" {
		t.Errorf("extra field lost: %v", fields)
	}
}

func TestDecodeMissingTypeFails(t *testing.T) {
	if _, err := Decode([]byte(`{"uniqueId":"u1"}`)); err == nil {
		t.Errorf("frame without type accepted")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Errorf("malformed frame accepted")
	}
}

func TestFieldsFlattening(t *testing.T) {
	e := &Event{
		Type:      TypeLike,
		User:      User{UniqueID: "u1", Nickname: "Nick"},
		LikeCount: 15,
		Extra:     map[string]any{"roomId": "r1", "likeCount": 999},
	}
	fields := e.Fields()
	if fields["likeCount"] != 15 {
		t.Errorf("typed field did not win over extra: %v", fields["likeCount"])
	}
	if fields["roomId"] != "r1" {
		t.Errorf("extra field missing")
	}
}

func TestSignatureDistinguishesLogicalEvents(t *testing.T) {
	a := &Event{Type: TypeChat, User: User{UniqueID: "u1"}, Comment: "hi"}
	b := &Event{Type: TypeChat, User: User{UniqueID: "u1"}, Comment: "hi"}
	c := &Event{Type: TypeChat, User: User{UniqueID: "u1"}, Comment: "yo"}
	if a.Signature() != b.Signature() {
		t.Errorf("identical events got different signatures")
	}
	if a.Signature() == c.Signature() {
		t.Errorf("different comments share a signature")
	}
	follow := &Event{Type: TypeFollow, User: User{UniqueID: "u1"}}
	if a.Signature() == follow.Signature() {
		t.Errorf("different event types share a signature")
	}
}
