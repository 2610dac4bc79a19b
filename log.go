package heapbuilder

import "github.com/sirupsen/logrus"

// log is the builder-wide logger. The teacher (flapc) gates diagnostic
// narration behind a package-level VerboseMode bool and fmt.Fprintf(os.Stderr, ...);
// this keeps the same single-switch shape but routes through logrus so
// callers can attach structured fields instead of formatting strings by
// hand, and so diagnostics can be silenced or redirected like any other
// logrus logger.
var log = logrus.New()

// logFields saves every other file in the package from importing logrus
// just to build a Fields map for log.WithFields.
type logFields = logrus.Fields

func init() {
	log.SetLevel(logrus.InfoLevel)
}

// SetVerbose mirrors the teacher's VerboseMode toggle: true drops the
// logger to Debug, exposing the per-step narration emitted while
// traversing, partitioning, and writing the heap.
func SetVerbose(verbose bool) {
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.InfoLevel)
	}
}
