package optstree

import (
	"regexp"
	"strings"

	"github.com/hyperifyio/optspipe/internal/opts"
	"github.com/rs/zerolog/log"
)

// VersionKeySeparator joins capability module names into a version key.
const VersionKeySeparator = "_and_"

// VersionKey derives the capability-version key from the engine modules,
// e.g. "analysis_spec_and_analysis_runner".
func VersionKey(engine []string) string {
	return strings.Join(engine, VersionKeySeparator)
}

// VersionKeyOf reads the engine field of a Metas node.
func VersionKeyOf(metas *opts.Node) string {
	return VersionKey(metas.Strings("engine"))
}

// VersionKeyMatcher returns a predicate recognising version keys: the key
// derived from the active engine, plus anything matching the metas
// version_key_pattern when one is set. An invalid pattern is logged and
// ignored.
func VersionKeyMatcher(metas *opts.Node) func(string) bool {
	active := VersionKeyOf(metas)
	var re *regexp.Regexp
	if pat := metas.Str("version_key_pattern"); pat != "" {
		compiled, err := regexp.Compile(pat)
		if err != nil {
			log.Warn().Err(err).Str("pattern", pat).Msg("ignoring invalid version_key_pattern")
		} else {
			re = compiled
		}
	}
	return func(key string) bool {
		if key == active && active != "" {
			return true
		}
		return re != nil && re.MatchString(key)
	}
}
