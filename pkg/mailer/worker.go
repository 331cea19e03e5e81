package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/client-powered/pkg/mailer/templates"
)

// Outcome is what happens to a delivery after processing.
type Outcome int

const (
	Ack     Outcome = iota
	Drop            // nack without requeue: the message can never succeed
	Requeue         // nack with requeue: sending failed, try again later
)

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// Worker renders queued EmailJobs and hands them to a Sender.
type Worker struct {
	Sender      Sender
	Geo         templates.GeoResolver // nil skips the location lookup
	Logger      *logrus.Logger
	SendTimeout time.Duration
}

var errNoRecipient = errors.New("job has no recipient")

// Process handles one message body.
func (w *Worker) Process(ctx context.Context, body []byte) Outcome {
	var job EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		w.Logger.WithError(err).Warn("bad message")
		return Drop
	}
	log := w.Logger.WithFields(logrus.Fields{"to": job.To, "template": job.Template})

	subject, text, html, err := w.render(ctx, &job)
	if err != nil {
		log.WithError(err).Warn("render failed")
		return Drop
	}

	timeout := w.SendTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := w.Sender.Send(sctx, job.To, subject, text, html); err != nil {
		log.WithError(err).Error("send failed")
		return Requeue
	}
	log.Info("email sent")
	return Ack
}

func (w *Worker) render(ctx context.Context, job *EmailJob) (subject, text, html string, err error) {
	if strings.TrimSpace(job.To) == "" {
		return "", "", "", errNoRecipient
	}
	if job.Template == "" {
		if job.Subject == "" || (job.Text == "" && job.HTML == "") {
			return "", "", "", fmt.Errorf("job has neither a template nor a body")
		}
		return job.Subject, job.Text, job.HTML, nil
	}
	if job.Data == nil {
		job.Data = map[string]any{}
	}
	w.fillLocation(ctx, job.Data)
	return templates.Render(job.Template, job.Data)
}

// fillLocation resolves the requester's IP into a coarse location when the
// publisher left it empty. Lookup failures leave the field empty.
func (w *Worker) fillLocation(ctx context.Context, data map[string]any) {
	if w.Geo == nil {
		return
	}
	if loc, _ := data["Location"].(string); loc != "" {
		return
	}
	ip, _ := data["IP"].(string)
	if ip == "" {
		return
	}
	g, err := w.Geo.Lookup(ctx, ip)
	if err != nil {
		w.Logger.WithError(err).Debug("geo lookup failed")
		return
	}
	data["Location"] = templates.FormatGeo(g)
}

// Run processes deliveries until the channel closes or ctx is done.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			var err error
			switch w.Process(ctx, d.Body) {
			case Ack:
				err = d.Ack(false)
			case Drop:
				err = d.Nack(false, false)
			case Requeue:
				err = d.Nack(false, true)
			}
			if err != nil {
				w.Logger.WithError(err).Warn("acknowledge failed")
			}
		}
	}
}
