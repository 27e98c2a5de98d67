package logsvc

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/babillard/core"
)

type level int

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
	levelFatal
)

var levelNames = map[level]string{
	levelDebug: "DEBUG",
	levelInfo:  "INFO",
	levelWarn:  "WARN",
	levelError: "ERROR",
	levelFatal: "FATAL",
}

// RollbarLogger reports to rollbar and mirrors every entry on a standard logger.
// Debug entries are dropped unless the app runs in debug mode.
type RollbarLogger struct {
	std      *log.Logger
	minLevel level
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)

	minLevel := levelInfo
	if conf.Debug {
		minLevel = levelDebug
	}
	return &RollbarLogger{std: std, minLevel: minLevel}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// entry is a log call split into what rollbar and the standard logger need.
// expected args: error, map[string]interface{}, core.Actor, in any order
type entry struct {
	msg    string
	err    error
	extras map[string]interface{}
	actor  *core.Actor
	rest   []interface{}
}

func newEntry(msg string, args []interface{}) entry {
	e := entry{msg: msg, extras: make(map[string]interface{})}
	for _, arg := range args {
		switch a := arg.(type) {
		case core.Actor:
			if e.actor == nil { // only keep one Actor
				actor := a
				e.actor = &actor
			}
		case error:
			if e.err == nil {
				e.err = a
			} else {
				e.rest = append(e.rest, a)
			}
		case map[string]interface{}:
			for k, v := range a {
				e.extras[k] = v
			}
		default:
			e.rest = append(e.rest, a)
		}
	}
	return e
}

// rollbarArgs returns the args of a rollbar call. The actor travels in a person context:
// rollbar's global person is shared by every goroutine.
func (e entry) rollbarArgs() []interface{} {
	extras := make(map[string]interface{}, len(e.extras)+1)
	for k, v := range e.extras {
		extras[k] = v
	}
	if len(e.rest) > 0 {
		extras["args"] = e.rest
	}

	args := make([]interface{}, 0, 4)
	if e.err != nil {
		args = append(args, e.err)
	}
	args = append(args, e.msg)
	if len(extras) > 0 {
		args = append(args, extras)
	}
	if e.actor != nil {
		args = append(args, rollbar.NewPersonContext(context.Background(), &rollbar.Person{
			Id:       e.actor.ID,
			Username: e.actor.Role,
		}))
	}
	return args
}

// line formats the entry as: LEVEL msg key=value ... error="..."
func (e entry) line(lvl level) string {
	var b strings.Builder
	b.WriteString(levelNames[lvl])
	b.WriteByte(' ')
	b.WriteString(e.msg)

	keys := make([]string, 0, len(e.extras))
	for k := range e.extras {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.extras[k])
	}
	if e.actor != nil {
		fmt.Fprintf(&b, " actor=%s role=%s", e.actor.ID, e.actor.Role)
	}
	for _, a := range e.rest {
		fmt.Fprintf(&b, " %v", a)
	}
	if e.err != nil {
		fmt.Fprintf(&b, " error=%q", e.err.Error())
	}
	return b.String()
}

func (l RollbarLogger) log(lvl level, msg string, args []interface{}) {
	if lvl < l.minLevel {
		return
	}
	e := newEntry(msg, args)

	rArgs := e.rollbarArgs()
	switch lvl {
	case levelDebug:
		rollbar.Debug(rArgs...)
	case levelInfo:
		rollbar.Info(rArgs...)
	case levelWarn:
		rollbar.Warning(rArgs...)
	case levelError:
		rollbar.Error(rArgs...)
	case levelFatal:
		rollbar.Critical(rArgs...)
	}
	l.std.Println(e.line(lvl))
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	l.log(levelDebug, msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	l.log(levelInfo, msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	l.log(levelWarn, msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	l.log(levelError, msg, args)
}

// Fatal waits for the pending rollbar reports then exits.
func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(levelFatal, msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
