package pebble

import (
	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"
)

// engineLogger routes Pebble's own log lines into zerolog.
type engineLogger struct {
	logger zerolog.Logger
}

func (l engineLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

func (l engineLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

func (l engineLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatal().Msgf(format, args...)
}

func newEventListener(logger zerolog.Logger) *pebble.EventListener {
	return &pebble.EventListener{
		BackgroundError: func(err error) {
			logger.Error().Err(err).Msg("background error")
		},
		FlushEnd: func(info pebble.FlushInfo) {
			if info.Err != nil {
				logger.Error().Err(info.Err).Int("job", info.JobID).Msg("flush failed")
				return
			}
			logger.Debug().Int("job", info.JobID).Dur("duration", info.TotalDuration).Msg("flush finished")
		},
		CompactionEnd: func(info pebble.CompactionInfo) {
			if info.Err != nil {
				logger.Error().Err(info.Err).Int("job", info.JobID).Msg("compaction failed")
				return
			}
			logger.Debug().Int("job", info.JobID).Dur("duration", info.TotalDuration).Msg("compaction finished")
		},
		WriteStallBegin: func(info pebble.WriteStallBeginInfo) {
			logger.Warn().Str("reason", info.Reason).Msg("write stall")
		},
		WriteStallEnd: func() {
			logger.Info().Msg("write stall cleared")
		},
	}
}
