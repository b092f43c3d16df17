package tools

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/tools"
)

var datetimeLogger = logrus.WithField("tool", "datetime")

type DateTimeTool struct {
	now func() time.Time
}

func NewDateTimeTool() *DateTimeTool {
	datetimeLogger.Debug("Initializing datetime tool")
	return &DateTimeTool{now: time.Now}
}

func (d *DateTimeTool) Description() string {
	return "Display the current date and time. Usage: empty input for local time, 'utc' for UTC."
}

func (d *DateTimeTool) Name() string {
	return "datetime"
}

func (d *DateTimeTool) Call(ctx context.Context, input string) (string, error) {
	datetimeLogger.WithField("input", input).Info("DateTime tool called")

	now := d.now()
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "utc", "-u", "date -u":
		now = now.UTC()
	}
	return now.Format("Mon Jan 2 15:04:05 MST 2006"), nil
}

var _ tools.Tool = (*DateTimeTool)(nil)
