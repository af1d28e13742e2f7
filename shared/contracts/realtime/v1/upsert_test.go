package v1

import (
	"encoding/json"
	"testing"
)

func TestUpsertData_DecodeVariants(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want UpsertKind
	}{
		{name: "send", in: `{"type":"send","data":{"id":"m1","message":"hi","read":false,"is_deleted":false}}`, want: UpsertSend},
		{name: "delete", in: `{"type":"delete","data":"m1"}`, want: UpsertDelete},
		{name: "update", in: `{"type":"update","data":{"id":"m1","chat":{"message":"edited"}}}`, want: UpsertUpdate},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var d UpsertData
			if err := json.Unmarshal([]byte(tc.in), &d); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if d.Upsert.Kind() != tc.want {
				t.Fatalf("kind=%q want=%q", d.Upsert.Kind(), tc.want)
			}
		})
	}
}

func TestUpsertData_RejectsMalformed(t *testing.T) {
	t.Parallel()

	bad := []string{
		`{"type":"archive","data":"m1"}`,
		`{"type":"delete","data":""}`,
		`{"type":"delete","data":{"id":"m1"}}`,
		`{"type":"update","data":{"chat":{}}}`,
		`{"type":"send"}`,
		`{"type":"send","data":null}`,
		`"send"`,
	}
	for _, in := range bad {
		var d UpsertData
		if err := json.Unmarshal([]byte(in), &d); err == nil {
			t.Fatalf("expected error for %s", in)
		}
	}
}

func TestUpsertData_UpdateWireShape(t *testing.T) {
	t.Parallel()

	d := UpsertData{Upsert: UpdateUpsert{MessageID: "m9", Chat: ChatMessage{Message: "new"}}}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw struct {
		Type string `json:"type"`
		Data struct {
			ID   string         `json:"id"`
			Chat map[string]any `json:"chat"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	if raw.Type != "update" || raw.Data.ID != "m9" || raw.Data.Chat["message"] != "new" {
		t.Fatalf("unexpected wire form: %s", b)
	}
}

func TestUpsertData_MarshalEmptyFails(t *testing.T) {
	t.Parallel()

	if _, err := json.Marshal(UpsertData{}); err == nil {
		t.Fatalf("expected error for empty upsert")
	}
}

func TestMatch_CoversEveryVariant(t *testing.T) {
	t.Parallel()

	name := func(u Upsert) string {
		return Match(u,
			func(SendUpsert) string { return "send" },
			func(DeleteUpsert) string { return "delete" },
			func(UpdateUpsert) string { return "update" },
		)
	}

	if got := name(SendUpsert{}); got != "send" {
		t.Fatalf("send -> %q", got)
	}
	if got := name(&DeleteUpsert{MessageID: "x"}); got != "delete" {
		t.Fatalf("delete -> %q", got)
	}
	if got := name(UpdateUpsert{}); got != "update" {
		t.Fatalf("update -> %q", got)
	}
}

func TestEnvelopeValidate(t *testing.T) {
	t.Parallel()

	ok := Envelope{V: Version, Type: TypeUpdateStatus, Payload: json.RawMessage(`{}`)}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid envelope rejected: %v", err)
	}

	cases := []Envelope{
		{Type: TypeUpdateStatus, Payload: json.RawMessage(`{}`)},
		{V: "v0", Type: TypeUpdateStatus, Payload: json.RawMessage(`{}`)},
		{V: Version, Payload: json.RawMessage(`{}`)},
		{V: Version, Type: "hello", Payload: json.RawMessage(`{}`)},
		{V: Version, Type: TypeUpsertMessage},
	}
	for i, env := range cases {
		if err := env.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
