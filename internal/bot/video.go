package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/whitecathq/whitecat/internal/channel"
	"github.com/whitecathq/whitecat/internal/fetch"
	"github.com/whitecathq/whitecat/internal/pipeline"
	"github.com/whitecathq/whitecat/internal/resolver"
)

// Default unit priorities, highest first so videos are claimed before
// the summary and AI units see the message.
const (
	PriorityVideoUnit   = 100
	PrioritySummaryUnit = 90
	PriorityAIUnit      = 80
)

var catEmojis = []string{"😺", "😸", "😹", "😻", "😼", "😽", "🙀", "😿", "😾", "🐱"}

func randomCatEmoji() string {
	return catEmojis[rand.Intn(len(catEmojis))]
}

// VideoResolver is the part of the resolver the unit consumes.
type VideoResolver interface {
	Resolve(ctx context.Context, input string) (resolver.Resolution, error)
}

// VideoFetcher downloads a resolved URL into memory.
type VideoFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// VideoUnit detects supported video URLs in messages, downloads the
// video and replies with it. Messages without a matching URL pass
// through to the units below.
type VideoUnit struct {
	logger   *slog.Logger
	resolver VideoResolver
	fetcher  VideoFetcher
	replier  channel.Replier
	botName  string
}

// NewVideoUnit creates the video download unit. botName appears in
// captions and error replies.
func NewVideoUnit(log *slog.Logger, res VideoResolver, fetcher VideoFetcher, replier channel.Replier, botName string) *VideoUnit {
	if log == nil {
		log = slog.Default()
	}
	return &VideoUnit{
		logger:   log.With(slog.String("unit", "VIDEO_DOWNLOAD")),
		resolver: res,
		fetcher:  fetcher,
		replier:  replier,
		botName:  botName,
	}
}

// Name returns the unit name used for registration and overrides.
func (u *VideoUnit) Name() string { return "VIDEO_DOWNLOAD" }

// Process resolves the message against the video groups. Once a group
// claims the message the unit always halts the pipeline, whether the
// download succeeds or not.
func (u *VideoUnit) Process(ctx context.Context, pc *pipeline.Context) error {
	msg := pc.Event
	text := msg.Content()
	if text == "" {
		return nil
	}

	res, err := u.resolver.Resolve(ctx, text)
	if errors.Is(err, resolver.ErrNoMatchingGroup) {
		return nil
	}
	if err != nil {
		pc.Halt()
		var failed *resolver.AllCandidatesFailedError
		if errors.As(err, &failed) {
			u.logger.Warn("all providers failed",
				slog.String("group", failed.Group),
				slog.Int("attempted", failed.Attempted),
				slog.String("chat_id", msg.ChatID))
			u.replyError(ctx, msg, fmt.Sprintf(
				"😿 Meow! I couldn't fetch this video. All my providers failed! "+
					"The video might be private, deleted, or the URL might be incorrect. %s\n\n%s",
				randomCatEmoji(), u.botName))
			return nil
		}
		u.logger.Error("resolve failed", slog.String("chat_id", msg.ChatID), slog.Any("error", err))
		u.replyError(ctx, msg, u.genericErrorText())
		return nil
	}

	pc.Set("video_url", res.Payload)
	pc.Set("video_group", res.Group)
	pc.Set("video_provider", res.Candidate)

	if err := u.replier.NotifyUploading(ctx, msg.ChatID); err != nil {
		u.logger.Warn("notify uploading failed", slog.String("chat_id", msg.ChatID), slog.Any("error", err))
	}

	data, err := u.fetcher.Fetch(ctx, res.Payload)
	if err != nil {
		pc.Halt()
		u.logger.Warn("video download failed",
			slog.String("group", res.Group),
			slog.String("provider", res.Candidate),
			slog.Any("error", err))
		u.replyError(ctx, msg, u.downloadErrorText(err))
		return nil
	}

	caption := fmt.Sprintf("Downloaded by %s\n%s #%d", u.botName, res.Group, res.Attempt)
	if err := u.replier.ReplyVideo(ctx, msg.ChatID, msg.MessageID, channel.VideoReply{Data: data, Caption: caption}); err != nil {
		pc.Halt()
		u.logger.Error("send video failed", slog.String("chat_id", msg.ChatID), slog.Any("error", err))
		u.replyError(ctx, msg, u.genericErrorText())
		return nil
	}

	u.logger.Info("video delivered",
		slog.String("group", res.Group),
		slog.String("provider", res.Candidate),
		slog.Int("bytes", len(data)),
		slog.String("chat_id", msg.ChatID))
	pc.Halt()
	return nil
}

func (u *VideoUnit) downloadErrorText(err error) string {
	switch {
	case errors.Is(err, fetch.ErrDeclaredSizeExceeded), errors.Is(err, fetch.ErrStreamedSizeExceeded):
		return fmt.Sprintf("😿 Meow! This video is too big for my tiny paws! %s\n\n%s",
			randomCatEmoji(), u.botName)
	case isNotFound(err):
		return fmt.Sprintf("😿 Meow! I couldn't find this video. The URL might be incorrect "+
			"or the video may have been deleted! %s\n\n%s", randomCatEmoji(), u.botName)
	default:
		return fmt.Sprintf("😿 Meow! Video download failed. Something went wrong! %s\n\n%s",
			randomCatEmoji(), u.botName)
	}
}

func (u *VideoUnit) genericErrorText() string {
	return fmt.Sprintf("😿 Oops! Something went wrong. This White Cat got confused! %s\n\n%s",
		randomCatEmoji(), u.botName)
}

func (u *VideoUnit) replyError(ctx context.Context, msg channel.InboundMessage, text string) {
	if err := u.replier.ReplyText(ctx, msg.ChatID, msg.MessageID, text); err != nil {
		u.logger.Error("send error reply failed", slog.String("chat_id", msg.ChatID), slog.Any("error", err))
	}
}

func isNotFound(err error) bool {
	var transport *fetch.TransportError
	return errors.As(err, &transport) && transport.NotFound()
}
