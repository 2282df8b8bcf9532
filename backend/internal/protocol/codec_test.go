package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanbanServer/backend/internal/model"
)

func env(t *testing.T, raw string) Envelope {
	t.Helper()
	var e Envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &e))
	return e
}

func TestDecodeIntent(t *testing.T) {
	in, err := DecodeIntent(env(t, `{"event":"item:move","ref":"u1","data":{"itemId":"k","targetParentId":"c2","targetOrder":1500}}`))
	require.NoError(t, err)
	assert.Equal(t, Move{ItemID: "k", TargetParentID: "c2", TargetOrder: 1500}, in)

	// an explicit 0 is a real position
	in, err = DecodeIntent(env(t, `{"event":"item:move","data":{"itemId":"k","targetParentId":"c2","targetOrder":0}}`))
	require.NoError(t, err)
	assert.Equal(t, Move{ItemID: "k", TargetParentID: "c2"}, in)

	in, err = DecodeIntent(env(t, `{"event":"item:create","data":{"parentId":"c1","fields":{"title":"Write docs"},"clientRef":"tmp-1"}}`))
	require.NoError(t, err)
	c := in.(Create)
	assert.Equal(t, "c1", c.ParentID)
	assert.Equal(t, "Write docs", *c.Fields.Title)
	assert.Nil(t, c.Order)
	assert.Equal(t, "tmp-1", c.ClientRef)

	in, err = DecodeIntent(env(t, `{"event":"board:join","data":{"boardId":"b1"}}`))
	require.NoError(t, err)
	assert.Equal(t, Join{BoardID: "b1"}, in)
}

func TestDecodeIntentRejects(t *testing.T) {
	cases := map[string]string{
		"unknown event":   `{"event":"item:teleport","data":{"itemId":"k"}}`,
		"unknown field":   `{"event":"item:lock","data":{"itemId":"k","force":true}}`,
		"missing id":      `{"event":"item:lock","data":{}}`,
		"blank id":        `{"event":"item:delete","data":{"itemId":"  "}}`,
		"missing data":    `{"event":"board:join"}`,
		"wrong type":      `{"event":"item:move","data":{"itemId":"k","targetParentId":"c","targetOrder":"high"}}`,
		"no title":        `{"event":"item:create","data":{"parentId":"c1","fields":{}}}`,
		"empty update":    `{"event":"item:update","data":{"itemId":"k","fields":{}}}`,
		"blank title":     `{"event":"item:update","data":{"itemId":"k","fields":{"title":""}}}`,
		"legacy unknown":  `{"event":"card:lock","data":{"itemId":"k"}}`,
		"no order":        `{"event":"item:move","data":{"itemId":"k","targetParentId":"c"}}`,
		"null order":      `{"event":"item:move","data":{"itemId":"k","targetParentId":"c","targetOrder":null}}`,
		"legacy no order": `{"event":"card:move","data":{"cardId":"k","targetColumnId":"c"}}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeIntent(env(t, raw))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecodeLegacyNames(t *testing.T) {
	in, err := DecodeIntent(env(t, `{"event":"card:move","data":{"cardId":"k","targetColumnId":"c2","targetOrder":2500}}`))
	require.NoError(t, err)
	assert.Equal(t, Move{ItemID: "k", TargetParentID: "c2", TargetOrder: 2500}, in)

	in, err = DecodeIntent(env(t, `{"event":"card:lock","data":{"cardId":"k"}}`))
	require.NoError(t, err)
	assert.Equal(t, Lock{ItemID: "k"}, in)

	in, err = DecodeIntent(env(t, `{"event":"card:update","data":{"cardId":"k","data":{"description":"more"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "more", *in.(Update).Fields.Description)

	in, err = DecodeIntent(env(t, `{"event":"card:create","data":{"columnId":"c1","title":"t","labels":["bug"]}}`))
	require.NoError(t, err)
	c := in.(Create)
	assert.Equal(t, "c1", c.ParentID)
	assert.Equal(t, []string{"bug"}, *c.Fields.Labels)

	in, err = DecodeIntent(env(t, `{"event":"column:create","data":{"boardId":"b1","title":"Done","order":3000}}`))
	require.NoError(t, err)
	c = in.(Create)
	assert.Equal(t, "b1", c.ParentID)
	assert.Equal(t, 3000.0, *c.Order)

	in, err = DecodeIntent(env(t, `{"event":"column:delete","data":{"columnId":"c1"}}`))
	require.NoError(t, err)
	assert.Equal(t, Delete{ItemID: "c1"}, in)
}

func TestIntentRoundTrip(t *testing.T) {
	title := "x"
	o := 12.5
	want := Create{ParentID: "c1", Fields: model.Fields{Title: &title}, Order: &o, ClientRef: "tmp"}

	e, err := EncodeIntent("ref-1", want)
	require.NoError(t, err)
	assert.Equal(t, ItemCreate, e.Event)
	assert.Equal(t, "ref-1", e.Ref)

	got, err := DecodeIntent(e)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEncodeEvent(t *testing.T) {
	e, err := EncodeEvent(Error{Message: "held", Code: "LOCK_CONFLICT", Ref: "u9"})
	require.NoError(t, err)
	assert.Equal(t, ErrorName, e.Event)
	assert.Equal(t, "u9", e.Ref)

	raw, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"error","ref":"u9","data":{"message":"held","code":"LOCK_CONFLICT","ref":"u9"}}`, string(raw))

	evt, err := DecodeEvent(e)
	require.NoError(t, err)
	assert.Equal(t, Error{Message: "held", Code: "LOCK_CONFLICT", Ref: "u9"}, evt)
}

func TestDecodeEvent(t *testing.T) {
	evt, err := DecodeEvent(env(t, `{"event":"item:moved","data":{"item":{"id":"k","kind":"card","parentId":"c2","order":1500},"fromParentId":"c1","toParentId":"c2","extra":1}}`))
	require.NoError(t, err)
	m := evt.(Moved)
	assert.Equal(t, "c1", m.FromParentID)
	assert.Equal(t, 1500.0, m.Item.Order)

	evt, err = DecodeEvent(env(t, `{"event":"error","ref":"r1","data":{"message":"boom"}}`))
	require.NoError(t, err)
	assert.Equal(t, "r1", evt.(Error).Ref)

	_, err = DecodeEvent(env(t, `{"event":"nope","data":{}}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}
