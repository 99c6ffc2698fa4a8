package videosvc

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/whitecathq/whitecat/internal/resolver"
)

// Group names double as config override keys.
const (
	GroupInstagram = "INSTAGRAM"
	GroupTikTok    = "TIKTOK"
)

var (
	instagramURLPattern = regexp.MustCompile(`https?://(?:www\.)?instagram\.com/(?:reels?|p|stories)/[A-Za-z0-9_-]+(?:/[^\s]*)?`)
	tiktokURLPattern    = regexp.MustCompile(`https?://(?:www\.)?tiktok\.com/@[\w.-]+/video/\d+|https?://(?:vm|vt)\.tiktok\.com/[\w-]+`)
)

// Settings selects which platforms and providers are active. A provider
// without an API key is skipped at registration time.
type Settings struct {
	RapidAPIKey     string
	ProviderTimeout time.Duration

	GroupPriority     map[string]int // keyed by group name; default used when absent
	ProviderPriority  map[string]int // keyed by provider name
	DisabledProviders map[string]bool
}

// Default priorities. TikTok providers run the scraper first since it
// tends to answer faster; Instagram leans on instagram120.
var defaultGroupPriority = map[string]int{
	GroupInstagram: 50,
	GroupTikTok:    50,
}

var defaultProviderPriority = map[string]int{
	ProviderInstagram120:        80,
	ProviderInstagramLooter2:    50,
	ProviderInstagramDownloader: 50,
	ProviderTikTokAPI1:          90,
	ProviderTikTokNoWatermark2:  85,
}

func (s Settings) groupPriority(name string) int {
	if p, ok := s.GroupPriority[name]; ok {
		return p
	}
	return defaultGroupPriority[name]
}

func (s Settings) providerPriority(name string) int {
	if p, ok := s.ProviderPriority[name]; ok {
		return p
	}
	return defaultProviderPriority[name]
}

func patternMatcher(re *regexp.Regexp) resolver.Matcher {
	return resolver.MatcherFunc(func(input string) (string, bool) {
		if m := re.FindString(input); m != "" {
			return m, true
		}
		return "", false
	})
}

// RegisterGroups builds the Instagram and TikTok groups from the
// settings and registers them on the resolver. Platforms whose provider
// list ends up empty are skipped with a warning rather than failing
// startup.
func RegisterGroups(log *slog.Logger, r *resolver.Resolver, s Settings) error {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "videosvc"))
	if s.RapidAPIKey == "" {
		log.Warn("rapidapi key not configured, video download disabled")
		return nil
	}

	instagram := []resolver.Candidate{
		NewInstagram120(log, s.RapidAPIKey, s.ProviderTimeout),
		NewInstagramLooter2(log, s.RapidAPIKey, s.ProviderTimeout),
		NewInstagramDownloader(log, s.RapidAPIKey, s.ProviderTimeout),
	}
	tiktok := []resolver.Candidate{
		NewTikTokAPI1(log, s.RapidAPIKey, s.ProviderTimeout),
		NewTikTokNoWatermark2(log, s.RapidAPIKey, s.ProviderTimeout),
	}

	groups := []struct {
		name       string
		pattern    *regexp.Regexp
		candidates []resolver.Candidate
	}{
		{GroupInstagram, instagramURLPattern, instagram},
		{GroupTikTok, tiktokURLPattern, tiktok},
	}

	for _, spec := range groups {
		g, err := resolver.NewGroup(spec.name, s.groupPriority(spec.name), patternMatcher(spec.pattern))
		if err != nil {
			return err
		}
		added := 0
		for _, c := range spec.candidates {
			if s.DisabledProviders[c.Name()] {
				log.Info("provider disabled", slog.String("provider", c.Name()))
				continue
			}
			if err := g.AddCandidate(c, s.providerPriority(c.Name())); err != nil {
				return fmt.Errorf("group %s: %w", spec.name, err)
			}
			added++
		}
		if added == 0 {
			log.Warn("no providers active, skipping group", slog.String("group", spec.name))
			continue
		}
		if err := r.RegisterGroup(g); err != nil {
			return err
		}
	}
	return nil
}
