package gologger

import (
	"context"
	"strings"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolvePrecedence(t *testing.T) {
	direct := &capturingLogger{id: "direct"}
	named := &capturingLogger{id: "named"}
	provider := &capturingProvider{logger: named}

	_, resolved := Resolve(ServiceLoggerName, provider, direct)
	if resolved.(*capturingLogger).id != "named" {
		t.Fatalf("provider logger must win over the direct logger")
	}

	resolvedProvider, resolved := Resolve(ServiceLoggerName, nil, direct)
	if resolved.(*capturingLogger).id != "direct" {
		t.Fatalf("direct logger must be used when no provider is given")
	}
	if resolvedProvider == nil {
		t.Fatalf("expected a provider wrapper derived from the logger")
	}

	_, resolved = Resolve(ServiceLoggerName, nil, nil)
	if resolved == nil {
		t.Fatalf("expected nop fallback when nothing is configured")
	}
}

func TestComponentLoggerNamesShareServiceRoot(t *testing.T) {
	names := []string{
		QueueLoggerName,
		InstallLoggerName,
		InboundLoggerName,
		RefreshLoggerName,
		ContactsLoggerName,
		SchedulerLoggerName,
	}
	seen := map[string]bool{}
	for _, name := range names {
		if !strings.HasPrefix(name, ServiceLoggerName+".") {
			t.Fatalf("component logger %q must hang off the service root", name)
		}
		if seen[name] {
			t.Fatalf("duplicate component logger name %q", name)
		}
		seen[name] = true
	}
}

func TestJobBridgeForwardsToResolvedLogger(t *testing.T) {
	named := &capturingLogger{id: "named"}
	provider := &capturingProvider{logger: named}

	_, _, jobProvider, jobLogger := ResolveForJob(QueueLoggerName, provider, nil)
	if jobProvider == nil || jobLogger == nil {
		t.Fatalf("expected go-job bridges from a resolved provider")
	}

	jobProvider.GetLogger(QueueLoggerName).Info("task accepted", "task_id", "crm.install.location")

	captured := named.lastInfo
	if captured.msg != "task accepted" {
		t.Fatalf("bridged message lost, got %q", captured.msg)
	}
	if captured.args[0] != "task_id" || captured.args[1] != "crm.install.location" {
		t.Fatalf("bridged args lost: %#v", captured.args)
	}
}

func TestBridgesAreNilSafe(t *testing.T) {
	if ToJobProvider(nil) != nil {
		t.Fatalf("nil provider must bridge to nil")
	}
	if ToJobLogger(nil) != nil {
		t.Fatalf("nil logger must bridge to nil")
	}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger *capturingLogger
}

func (p *capturingProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{
		msg:  msg,
		args: append([]any(nil), args...),
	}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
