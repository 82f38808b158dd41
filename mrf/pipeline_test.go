package mrf

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fedimod/mrf/activity"
	"github.com/fedimod/mrf/mrf/config"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Configurable test policy; records calls into a shared log.
type testPolicy struct {
	name   string
	calls  *[]string
	filter func(cfg *config.Config, act activity.Object) (activity.Object, error)
}

func (p testPolicy) Name() string {
	return p.name
}

func (p testPolicy) Filter(ctx context.Context, cfg *config.Config, act activity.Object) (activity.Object, error) {
	if p.calls != nil {
		*p.calls = append(*p.calls, p.name)
	}
	if p.filter == nil {
		return act, nil
	}
	return p.filter(cfg, act)
}

func (p testPolicy) Describe(cfg *config.Config) (map[string]any, error) {
	return map[string]any{"mrf_" + p.name: map[string]any{"enabled": true}}, nil
}

type describedPolicy struct {
	testPolicy
}

func (p describedPolicy) ConfigDescription() ConfigDescription {
	return ConfigDescription{Key: "mrf_" + p.name, RelatedPolicy: p.name}
}

type recordingNotifier struct {
	rejects []*RejectError
	err     error
}

func (n *recordingNotifier) SendReject(ctx context.Context, act activity.Object, rej *RejectError) error {
	n.rejects = append(n.rejects, rej)
	return n.err
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m = &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.Counter.GetValue()
}

func testActivity() activity.Object {
	return activity.Object{
		"id":     "https://example.com/activities/1",
		"type":   "Create",
		"actor":  "https://example.com/users/alice",
		"object": map[string]any{"type": "Note", "content": "hello"},
	}
}

func TestPipelineOrder(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	var calls []string

	appendContent := func(suffix string) func(*config.Config, activity.Object) (activity.Object, error) {
		return func(cfg *config.Config, act activity.Object) (activity.Object, error) {
			obj, _ := act.Map("object")
			content, _ := obj.String("content")
			return act.Set("object", obj.Set("content", content+suffix)), nil
		}
	}
	p := Pipeline{
		Config: config.StaticProvider{},
		Policies: []Policy{
			testPolicy{name: "one", calls: &calls, filter: appendContent(" one")},
			testPolicy{name: "two", calls: &calls, filter: appendContent(" two")},
		},
	}

	act := testActivity()
	before := act.Clone()
	out, err := p.Filter(ctx, act)
	require.NoError(t, err)
	obj, _ := out.Map("object")
	assert.Equal("hello one two", obj["content"])
	assert.Equal([]string{"one", "two"}, calls)
	assert.Equal(before, act)
}

func TestPipelineReject(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	var calls []string
	notifier := recordingNotifier{err: errors.New("slack down")}

	p := Pipeline{
		Config: config.StaticProvider{},
		Policies: []Policy{
			testPolicy{name: "first", calls: &calls},
			testPolicy{name: "blocker", calls: &calls, filter: func(*config.Config, activity.Object) (activity.Object, error) {
				return nil, Reject("nope")
			}},
			testPolicy{name: "never", calls: &calls},
		},
		Notifier: &notifier,
	}
	passes := policyResults.WithLabelValues("first", "pass")
	rejects := policyResults.WithLabelValues("blocker", "reject")
	skipped := policyResults.WithLabelValues("never", "pass")
	passesBefore, rejectsBefore, skippedBefore := counterValue(t, passes), counterValue(t, rejects), counterValue(t, skipped)

	out, err := p.Filter(ctx, testActivity())
	assert.Nil(out)
	assert.ErrorIs(err, ErrReject)
	rej, ok := AsReject(err)
	require.True(t, ok)
	assert.Equal("blocker", rej.Policy)
	assert.Equal("nope", rej.Reason)
	assert.Equal("rejected by blocker: nope", err.Error())
	assert.Equal([]string{"first", "blocker"}, calls)
	// notification failure does not change the outcome
	assert.Len(notifier.rejects, 1)

	assert.Equal(passesBefore+1, counterValue(t, passes))
	assert.Equal(rejectsBefore+1, counterValue(t, rejects))
	assert.Equal(skippedBefore, counterValue(t, skipped))
}

func TestPipelineErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	errBoom := errors.New("boom")

	fixtures := []struct {
		name   string
		filter func(*config.Config, activity.Object) (activity.Object, error)
		target error
	}{
		{"error", func(*config.Config, activity.Object) (activity.Object, error) { return nil, errBoom }, errBoom},
		{"nil", func(*config.Config, activity.Object) (activity.Object, error) { return nil, nil }, ErrNilActivity},
		{"panic", func(*config.Config, activity.Object) (activity.Object, error) { panic("bad policy") }, ErrPolicyPanic},
	}
	for _, f := range fixtures {
		var calls []string
		p := Pipeline{
			Config: config.StaticProvider{},
			Policies: []Policy{
				testPolicy{name: f.name, filter: f.filter},
				testPolicy{name: "after", calls: &calls},
			},
		}
		out, err := p.Filter(ctx, testActivity())
		assert.Nil(out, f.name)
		assert.ErrorIs(err, f.target, f.name)
		assert.NotErrorIs(err, ErrReject, f.name)
		assert.Contains(err.Error(), "MRF policy "+f.name, f.name)
		assert.Empty(calls, f.name)
	}
}

func TestPipelineConfigPerRun(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	store := config.NewStore(nil)

	var seen []float64
	p := Pipeline{
		Config: store,
		Policies: []Policy{
			testPolicy{name: "a", filter: func(cfg *config.Config, act activity.Object) (activity.Object, error) {
				seen = append(seen, cfg.NSFWAPI.Threshold)
				return act, nil
			}},
			testPolicy{name: "b", filter: func(cfg *config.Config, act activity.Object) (activity.Object, error) {
				seen = append(seen, cfg.NSFWAPI.Threshold)
				return act, nil
			}},
		},
	}

	_, err := p.Filter(ctx, testActivity())
	assert.NoError(err)

	cfg := config.Default()
	cfg.NSFWAPI.Threshold = 0.9
	require.NoError(t, store.Update(cfg))
	_, err = p.Filter(ctx, testActivity())
	assert.NoError(err)

	assert.Equal([]float64{0.7, 0.7, 0.9, 0.9}, seen)
}

func TestPipelineDescribe(t *testing.T) {
	assert := assert.New(t)
	p := Pipeline{
		Config: config.StaticProvider{},
		Policies: []Policy{
			testPolicy{name: "one"},
			describedPolicy{testPolicy{name: "two"}},
		},
	}

	desc, err := p.Describe(context.Background())
	require.NoError(t, err)
	assert.Equal([]string{"one", "two"}, desc["mrf_policies"])
	assert.Contains(desc, "mrf_one")
	assert.Contains(desc, "mrf_two")

	cds := p.ConfigDescriptions()
	require.Len(t, cds, 1)
	assert.Equal("mrf_two", cds[0].Key)
}

func TestSlackNotifier(t *testing.T) {
	assert := assert.New(t)
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	n := SlackNotifier{SlackWebhookURL: srv.URL, Client: srv.Client()}
	err := n.SendReject(context.Background(), testActivity(), &RejectError{Policy: "keyword", Reason: "[KeywordPolicy] Matches with rejected keyword"})
	require.NoError(t, err)
	assert.True(strings.HasPrefix(body, `{"text":`))
	assert.Contains(body, "Policy `keyword`")
	assert.Contains(body, "https://example.com/users/alice")
	assert.Contains(body, "https://example.com/activities/1")
}

func TestSlackNotifierFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid_token"))
	}))
	defer srv.Close()

	n := SlackNotifier{SlackWebhookURL: srv.URL, Client: srv.Client()}
	err := n.SendReject(context.Background(), testActivity(), &RejectError{Policy: "keyword", Reason: "x"})
	assert.Error(t, err)
}
