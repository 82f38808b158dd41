package activity

import (
	"errors"
	"fmt"
)

// Indicates that an object carries a "formerRepresentations" collection which can not be walked (not a collection, items not a list, or an item which is not an object).
var ErrMalformedHistory = errors.New("malformed formerRepresentations history")

const (
	historyKey      = "formerRepresentations"
	historyItemsKey = "orderedItems"
)

// Returns the prior revisions of an edited object, oldest-first as stored.
//
// Absent history is an empty list, not an error.
func History(obj Object) ([]Object, error) {
	raw, ok := obj[historyKey]
	if !ok || raw == nil {
		return nil, nil
	}
	coll, ok := AsObject(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrMalformedHistory, historyKey, raw)
	}
	rawItems, ok := coll[historyItemsKey]
	if !ok || rawItems == nil {
		return nil, nil
	}
	items, ok := rawItems.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T", ErrMalformedHistory, historyItemsKey, rawItems)
	}
	out := make([]Object, len(items))
	for i, item := range items {
		entry, ok := AsObject(item)
		if !ok {
			return nil, fmt.Errorf("%w: item %d is %T", ErrMalformedHistory, i, item)
		}
		out[i] = entry
	}
	return out, nil
}

// Applies fn to an object and to every historical revision of it.
//
// fn runs on the current object first, then on each history entry in order. The first error returned by fn is returned immediately, without running fn on later entries. On success, the result is fn's output for the current object, with the history collection items replaced element-wise by fn's output for each entry. Other fields of the history collection are kept.
//
// The input object is not modified.
func WithHistory(obj Object, fn func(Object) (Object, error)) (Object, error) {
	current, err := fn(obj)
	if err != nil {
		return nil, err
	}
	history, err := History(obj)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return current, nil
	}

	items := make([]any, len(history))
	for i, entry := range history {
		out, err := fn(entry)
		if err != nil {
			return nil, err
		}
		items[i] = map[string]any(out)
	}

	coll, _ := obj.Map(historyKey)
	return current.Set(historyKey, coll.Set(historyItemsKey, items)), nil
}
