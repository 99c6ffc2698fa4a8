package bot_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/whitecathq/whitecat/internal/bot"
	"github.com/whitecathq/whitecat/internal/channel"
	"github.com/whitecathq/whitecat/internal/fetch"
	"github.com/whitecathq/whitecat/internal/pipeline"
	"github.com/whitecathq/whitecat/internal/resolver"
)

type fakeReplier struct {
	mu        sync.Mutex
	texts     []string
	videos    []channel.VideoReply
	typing    int
	uploading int
}

func (r *fakeReplier) ReplyText(_ context.Context, _, _ string, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *fakeReplier) ReplyVideo(_ context.Context, _, _ string, video channel.VideoReply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.videos = append(r.videos, video)
	return nil
}

func (r *fakeReplier) NotifyTyping(_ context.Context, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.typing++
	return nil
}

func (r *fakeReplier) NotifyUploading(_ context.Context, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploading++
	return nil
}

func (r *fakeReplier) lastText(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.texts) == 0 {
		t.Fatal("no text reply sent")
	}
	return r.texts[len(r.texts)-1]
}

type fakeResolver struct {
	res resolver.Resolution
	err error
}

func (f *fakeResolver) Resolve(_ context.Context, _ string) (resolver.Resolution, error) {
	return f.res, f.err
}

type fakeFetcher struct {
	data []byte
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	return f.data, f.err
}

func videoMessage(text string) channel.InboundMessage {
	return channel.InboundMessage{ChatID: "100", MessageID: "5", Text: text}
}

func dispatchVideo(t *testing.T, unit *bot.VideoUnit, msg channel.InboundMessage) *pipeline.Context {
	t.Helper()
	p := pipeline.New(nil)
	if err := p.Register(unit, bot.PriorityVideoUnit, true); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return p.Dispatch(context.Background(), msg)
}

func TestVideoUnitDeliversVideo(t *testing.T) {
	t.Parallel()

	replier := &fakeReplier{}
	unit := bot.NewVideoUnit(nil,
		&fakeResolver{res: resolver.Resolution{Payload: "https://cdn/v.mp4", Group: "INSTAGRAM", Candidate: "INSTAGRAM120", Attempt: 2}},
		&fakeFetcher{data: []byte("vid")},
		replier, "@white_cat_bot")

	pc := dispatchVideo(t, unit, videoMessage("https://www.instagram.com/reel/C1/"))
	if !pc.Halted() {
		t.Fatal("pipeline must halt after delivery")
	}
	if len(replier.videos) != 1 {
		t.Fatalf("videos sent = %d", len(replier.videos))
	}
	want := "Downloaded by @white_cat_bot\nINSTAGRAM #2"
	if replier.videos[0].Caption != want {
		t.Fatalf("caption = %q, want %q", replier.videos[0].Caption, want)
	}
	if replier.uploading != 1 {
		t.Fatalf("uploading notifications = %d", replier.uploading)
	}
}

func TestVideoUnitPassesThroughWithoutURL(t *testing.T) {
	t.Parallel()

	replier := &fakeReplier{}
	unit := bot.NewVideoUnit(nil,
		&fakeResolver{err: resolver.ErrNoMatchingGroup},
		&fakeFetcher{}, replier, "@bot")

	pc := dispatchVideo(t, unit, videoMessage("just chatting"))
	if pc.Halted() {
		t.Fatal("unmatched message must not halt")
	}
	if len(replier.texts) != 0 || len(replier.videos) != 0 {
		t.Fatal("no replies expected for unmatched message")
	}
}

func TestVideoUnitAllProvidersFailed(t *testing.T) {
	t.Parallel()

	replier := &fakeReplier{}
	unit := bot.NewVideoUnit(nil,
		&fakeResolver{err: &resolver.AllCandidatesFailedError{Group: "TIKTOK", Attempted: 2}},
		&fakeFetcher{}, replier, "@bot")

	pc := dispatchVideo(t, unit, videoMessage("https://vm.tiktok.com/x/"))
	if !pc.Halted() {
		t.Fatal("claimed message must halt even on failure")
	}
	if got := replier.lastText(t); !strings.Contains(got, "All my providers failed") {
		t.Fatalf("reply = %q", got)
	}
}

func TestVideoUnitDownloadErrorReplies(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{"declared too large", fetch.ErrDeclaredSizeExceeded, "too big"},
		{"streamed too large", fmt.Errorf("fetch: %w", fetch.ErrStreamedSizeExceeded), "too big"},
		{"not found", &fetch.TransportError{StatusCode: 404}, "couldn't find"},
		{"server error", &fetch.TransportError{StatusCode: 500}, "download failed"},
		{"network", errors.New("connection reset"), "download failed"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			replier := &fakeReplier{}
			unit := bot.NewVideoUnit(nil,
				&fakeResolver{res: resolver.Resolution{Payload: "https://cdn/v.mp4", Group: "INSTAGRAM", Candidate: "INSTAGRAM120", Attempt: 1}},
				&fakeFetcher{err: tc.err},
				replier, "@bot")

			pc := dispatchVideo(t, unit, videoMessage("https://www.instagram.com/reel/C1/"))
			if !pc.Halted() {
				t.Fatal("claimed message must halt on download failure")
			}
			if got := replier.lastText(t); !strings.Contains(got, tc.want) {
				t.Fatalf("reply = %q, want substring %q", got, tc.want)
			}
			if len(replier.videos) != 0 {
				t.Fatal("no video must be sent on failure")
			}
		})
	}
}

func TestVideoUnitIgnoresEmptyMessages(t *testing.T) {
	t.Parallel()

	replier := &fakeReplier{}
	unit := bot.NewVideoUnit(nil, &fakeResolver{err: resolver.ErrNoMatchingGroup}, &fakeFetcher{}, replier, "@bot")
	pc := dispatchVideo(t, unit, channel.InboundMessage{ChatID: "1", MessageID: "2"})
	if pc.Halted() {
		t.Fatal("empty message must pass through")
	}
}
