package activity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON(t *testing.T) {
	assert := assert.New(t)

	obj, err := ParseJSON([]byte(`{"type": "Create", "id": "https://example.com/a/1", "object": {"content": "hi", "x-unknown": [1, 2]}}`))
	require.NoError(t, err)
	assert.Equal("Create", obj.Type())
	assert.Equal("https://example.com/a/1", obj.ID())

	inner, ok := obj.Map("object")
	assert.True(ok)
	content, ok := inner.String("content")
	assert.True(ok)
	assert.Equal("hi", content)
	assert.True(inner.Has("x-unknown"))

	_, err = ParseJSON([]byte(`[1, 2]`))
	assert.Error(err)
	_, err = ParseJSON([]byte(`null`))
	assert.Error(err)
	_, err = ParseJSON([]byte(`{`))
	assert.Error(err)
}

func TestAccessorsTolerateMissing(t *testing.T) {
	assert := assert.New(t)

	obj := Object{
		"content": 123.0,
		"to":      []any{"a", 7.0, "b"},
		"cc":      "c",
	}

	_, ok := obj.String("content")
	assert.False(ok)
	_, ok = obj.String("summary")
	assert.False(ok)
	_, ok = obj.Map("object")
	assert.False(ok)
	_, ok = obj.List("attachment")
	assert.False(ok)
	assert.Equal("", obj.Type())

	assert.Equal([]string{"a", "b"}, obj.Strings("to"))
	assert.Equal([]string{"c"}, obj.Strings("cc"))
	assert.Nil(obj.Strings("bto"))

	assert.True(obj.AddressedTo("to", "b"))
	assert.False(obj.AddressedTo("to", "z"))
}

func TestSetIsCopyOnWrite(t *testing.T) {
	assert := assert.New(t)

	orig := Object{"content": "one", "tag": []any{"art"}}
	snapshot := orig.Clone()

	updated := orig.Set("content", "two").Set("tag", []string{"art", "nsfw"})
	assert.Equal(snapshot, orig)
	assert.Equal("two", updated["content"])
	assert.Equal([]any{"art", "nsfw"}, updated["tag"])

	nested := orig.Set("object", Object{"sensitive": true})
	_, isPlainMap := nested["object"].(map[string]any)
	assert.True(isPlainMap)

	multi := orig.SetAll(map[string]any{"to": []string{"x"}, "cc": []string{}})
	assert.Equal([]any{"x"}, multi["to"])
	assert.Equal([]any{}, multi["cc"])
	assert.Equal(snapshot, orig)
}

func TestCloneIsDeep(t *testing.T) {
	assert := assert.New(t)

	orig := Object{
		"object": map[string]any{
			"attachment": []any{
				map[string]any{"url": []any{"https://example.com/a.png"}},
			},
		},
	}
	c := orig.Clone()
	inner := c["object"].(map[string]any)
	inner["content"] = "changed"
	att := inner["attachment"].([]any)[0].(map[string]any)
	att["url"] = "changed"

	origInner := orig["object"].(map[string]any)
	assert.False(Object(origInner).Has("content"))
	assert.Equal([]any{"https://example.com/a.png"}, origInner["attachment"].([]any)[0].(map[string]any)["url"])
}

func TestJSONRoundTrip(t *testing.T) {
	assert := assert.New(t)

	raw := `{"actor":"https://example.com/users/alice","object":{"content":"hi","tag":["a"]},"type":"Create"}`
	obj, err := ParseJSON([]byte(raw))
	require.NoError(t, err)
	out, err := json.Marshal(obj.Set("extra", true))
	require.NoError(t, err)

	again, err := ParseJSON(out)
	require.NoError(t, err)
	assert.Equal(true, again["extra"])
	assert.Equal(obj["object"], again["object"])
}

func TestAddressingHelpers(t *testing.T) {
	assert := assert.New(t)

	bob := map[string]any{"type": "Person", "id": "https://example.com/users/bob"}
	in := []any{Public, "a", bob, "b", "a"}
	assert.Equal([]any{"a", bob, "b", "a"}, Without(in, Public))
	assert.Equal([]any{Public, "a", bob, "b"}, Dedupe(in))
	assert.Equal([]any{"z", Public, "a", bob, "b", "a"}, Prepend("z", in))
	// inputs untouched
	assert.Equal([]any{Public, "a", bob, "b", "a"}, in)
}

func TestAddresses(t *testing.T) {
	assert := assert.New(t)

	bob := map[string]any{"type": "Person", "id": "https://example.com/users/bob"}
	obj := Object{
		"to":  []any{Public, bob},
		"cc":  "https://example.com/users/alice/followers",
		"bto": bob,
	}
	assert.Equal([]any{Public, bob}, obj.Addresses("to"))
	assert.Equal([]any{"https://example.com/users/alice/followers"}, obj.Addresses("cc"))
	assert.Equal([]any{bob}, obj.Addresses("bto"))
	assert.Nil(obj.Addresses("bcc"))

	// the returned list is a copy
	to := obj.Addresses("to")
	to[0] = "changed"
	assert.Equal(Public, obj["to"].([]any)[0])
}

func TestParseJSONKeepsNumbers(t *testing.T) {
	assert := assert.New(t)

	raw := `{"type":"Note","x:statusId":12345678901234567891,"x:ratio":0.1,"x:list":[9007199254740993]}`
	obj, err := ParseJSON([]byte(raw))
	require.NoError(t, err)
	assert.Equal(json.Number("12345678901234567891"), obj["x:statusId"])

	out, err := json.Marshal(obj.Clone().Set("content", "hi"))
	require.NoError(t, err)
	assert.Contains(string(out), `"x:statusId":12345678901234567891`)
	assert.Contains(string(out), `"x:ratio":0.1`)
	assert.Contains(string(out), `"x:list":[9007199254740993]`)

	_, err = ParseJSON([]byte(`{"type":"Note"} {"type":"Note"}`))
	assert.Error(err)
	_, err = ParseJSON([]byte("{\"type\":\"Note\"}\n"))
	assert.NoError(err)
}
