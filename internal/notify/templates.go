package notify

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"ms-enrollment/internal/messaging"
	"ms-enrollment/internal/models"

	"github.com/skip2/go-qrcode"
)

const deadlineLayout = "2006/01/02 15:04"

// Site supplies the storefront details that messages link to.
type Site interface {
	PaymentLink(orderID int64) string
	Location() *time.Location
}

// Reminder is everything any channel needs to tell a buyer how to pay.
type Reminder struct {
	OrderID     int64
	StudentName string
	StudentID   int64
	CourseName  string
	Variant     string
	Amount      string
	ExpiresAt   string
	PaymentLink string
	QRCode      template.URL
}

func BuildReminder(o models.Order, p models.Profile, c models.Course, site Site) Reminder {
	link := site.PaymentLink(o.OrderID)
	return Reminder{
		OrderID:     o.OrderID,
		StudentName: p.FullName,
		StudentID:   p.StudentID,
		CourseName:  c.DisplayName(),
		Variant:     variantLabel(o.CourseVariant),
		Amount:      FormatAmount(o.Total),
		ExpiresAt:   o.PaymentDeadline().In(site.Location()).Format(deadlineLayout),
		PaymentLink: link,
		QRCode:      qrDataURI(link),
	}
}

func variantLabel(v models.CourseVariant) string {
	switch v {
	case models.VariantGroup:
		return "Group class"
	case models.VariantSingle:
		return "Private session"
	}
	return string(v)
}

// FormatAmount renders whole currency units with thousands separators.
func FormatAmount(total int64) string {
	sign := ""
	if total < 0 {
		sign = "-"
		total = -total
	}
	digits := strconv.FormatInt(total, 10)
	var b bytes.Buffer
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return sign + "NT$" + b.String()
}

// qrDataURI is empty when the link cannot be encoded; the email still works without it.
func qrDataURI(link string) template.URL {
	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		return ""
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(png))
}

// ---------------- EMAIL ----------------

func (r Reminder) EmailSubject() string {
	return fmt.Sprintf("Order #%d: complete your transfer by %s", r.OrderID, r.ExpiresAt)
}

var emailHTML = template.Must(template.New("reminder").Parse(`<!DOCTYPE html>
<html><body style="font-family:sans-serif;color:#222">
<p>Hi {{.StudentName}} (student #{{.StudentID}}),</p>
<p>Thanks for signing up for <strong>{{.CourseName}}</strong> ({{.Variant}}).</p>
<table cellpadding="4">
<tr><td>Order</td><td>#{{.OrderID}}</td></tr>
<tr><td>Amount</td><td>{{.Amount}}</td></tr>
<tr><td>Pay before</td><td>{{.ExpiresAt}}</td></tr>
</table>
<p>Please complete the bank transfer and report it on the payment page:</p>
<p><a href="{{.PaymentLink}}">{{.PaymentLink}}</a></p>
{{if .QRCode}}<p><img src="{{.QRCode}}" alt="Payment page QR code" width="160" height="160"></p>{{end}}
<p>Unpaid orders lapse after the deadline above.</p>
</body></html>`))

func (r Reminder) EmailHTML() (string, error) {
	var buf bytes.Buffer
	if err := emailHTML.Execute(&buf, r); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r Reminder) EmailText() string {
	return fmt.Sprintf(
		"Hi %s (student #%d),\n\nOrder #%d for %s (%s)\nAmount: %s\nPay before: %s\n\nReport your transfer at %s\n",
		r.StudentName, r.StudentID, r.OrderID, r.CourseName, r.Variant, r.Amount, r.ExpiresAt, r.PaymentLink,
	)
}

// TemplateData feeds the provider-side dynamic template when one is configured.
func (r Reminder) TemplateData() map[string]interface{} {
	return map[string]interface{}{
		"student_name": r.StudentName,
		"student_id":   r.StudentID,
		"order_id":     r.OrderID,
		"course_name":  r.CourseName,
		"variant":      r.Variant,
		"amount":       r.Amount,
		"expires_at":   r.ExpiresAt,
		"payment_link": r.PaymentLink,
		"qr_code":      string(r.QRCode),
	}
}

// ---------------- PUSH ----------------

func (r Reminder) PushMessage() messaging.Message {
	return messaging.NewCard(
		fmt.Sprintf("Order #%d: please pay %s by %s", r.OrderID, r.Amount, r.ExpiresAt),
		messaging.Card{
			Title: "Payment reminder",
			Fields: []messaging.Field{
				{Label: "Order", Value: fmt.Sprintf("#%d", r.OrderID)},
				{Label: "Course", Value: r.CourseName},
				{Label: "Amount", Value: r.Amount},
				{Label: "Pay before", Value: r.ExpiresAt},
			},
			Footnote:    "Unpaid orders lapse after the deadline.",
			ButtonLabel: "Report transfer",
			ButtonURL:   r.PaymentLink,
		},
	)
}
