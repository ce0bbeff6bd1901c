package testfixtures

import (
	"couplesync/backend/internal/localization"
	"couplesync/backend/internal/notify"
)

// Emitter returns an Emitter recording into a fresh Recorder.
func Emitter(c *Clock) (notify.Emitter, *notify.Recorder) {
	rec := &notify.Recorder{}
	return notify.Emitter{Sink: rec, Now: c.NowFunc()}, rec
}

// Texts returns the built-in English texts.
func Texts() localization.Texts {
	return localization.Texts{L: localization.Builtin(), Lang: "en"}
}
