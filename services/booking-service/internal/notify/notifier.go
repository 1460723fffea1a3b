package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/bookwell/services/booking-service/internal/model"
)

// Notifier renders customer messages and hands them to the configured
// senders. Email is always attempted; SMS only when the customer left a
// phone number and an SMS sender is set.
type Notifier struct {
	email   EmailSender
	sms     SMSSender
	baseURL string
}

var _ booking.Notifier = (*Notifier)(nil)

func NewNotifier(email EmailSender, sms SMSSender, publicBaseURL string) *Notifier {
	return &Notifier{
		email:   email,
		sms:     sms,
		baseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
	}
}

func (n *Notifier) SendConfirmation(ctx context.Context, c model.Client, a model.Appointment, cancelToken string) error {
	when := formatWhen(c, a)
	body := fmt.Sprintf("Hi %s,\n\nYour appointment with %s is confirmed for %s.\n", a.CustomerName, c.Name, when)
	if link := n.manageLink(a.ID, cancelToken); link != "" {
		body += "\nTo view or cancel this appointment, visit:\n" + link + "\n"
	}
	return n.send(ctx, a,
		EmailMessage{To: a.CustomerEmail, ToName: a.CustomerName, Subject: "Appointment confirmed with " + c.Name, Body: body},
		fmt.Sprintf("%s: your appointment is confirmed for %s.", c.Name, when))
}

func (n *Notifier) SendCancellation(ctx context.Context, c model.Client, a model.Appointment) error {
	when := formatWhen(c, a)
	body := fmt.Sprintf("Hi %s,\n\nYour appointment with %s on %s has been cancelled.\n", a.CustomerName, c.Name, when)
	return n.send(ctx, a,
		EmailMessage{To: a.CustomerEmail, ToName: a.CustomerName, Subject: "Appointment cancelled with " + c.Name, Body: body},
		fmt.Sprintf("%s: your appointment on %s has been cancelled.", c.Name, when))
}

func (n *Notifier) SendReminder(ctx context.Context, c model.Client, a model.Appointment) error {
	when := formatWhen(c, a)
	body := fmt.Sprintf("Hi %s,\n\nThis is a reminder of your appointment with %s on %s.\n", a.CustomerName, c.Name, when)
	return n.send(ctx, a,
		EmailMessage{To: a.CustomerEmail, ToName: a.CustomerName, Subject: "Reminder: appointment with " + c.Name, Body: body},
		fmt.Sprintf("Reminder from %s: your appointment is on %s.", c.Name, when))
}

// PartialError reports a message that reached the customer on some channels
// and failed on others.
type PartialError struct {
	Delivered []string
	Err       error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("delivered via %s; %v", strings.Join(e.Delivered, ","), e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// AnyDelivered lets callers outside this package tell a partial failure from
// a total one.
func (e *PartialError) AnyDelivered() bool { return len(e.Delivered) > 0 }

// send returns nil when every attempted channel succeeded, a *PartialError
// when at least one did, and the joined channel errors otherwise.
func (n *Notifier) send(ctx context.Context, a model.Appointment, msg EmailMessage, text string) error {
	var (
		errs      []error
		delivered []string
	)
	if n.email != nil && msg.To != "" {
		if err := n.email.Send(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("email: %w", err))
		} else {
			delivered = append(delivered, "email")
		}
	}
	if n.sms != nil && a.CustomerPhone != "" {
		if err := n.sms.Send(ctx, a.CustomerPhone, text); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.sms.ProviderID(), err))
		} else {
			delivered = append(delivered, n.sms.ProviderID())
		}
	}
	err := errors.Join(errs...)
	if err != nil && len(delivered) > 0 {
		return &PartialError{Delivered: delivered, Err: err}
	}
	return err
}

func (n *Notifier) manageLink(id, token string) string {
	if n.baseURL == "" || token == "" {
		return ""
	}
	return n.baseURL + "/appointments/" + url.PathEscape(id) + "?token=" + url.QueryEscape(token)
}

func formatWhen(c model.Client, a model.Appointment) string {
	loc := c.Location()
	return a.StartTime.In(loc).Format("Monday, January 2, 2006 at 3:04 PM") + " (" + loc.String() + ")"
}
