package mail

import "html/template"

const detailsTmpl = `{{define "details"}}
<p><strong>Booking ID:</strong> {{.BookingID}}</p>
<p><strong>Check-in:</strong> {{.CheckInDisplay}} at 2:00 PM</p>
<p><strong>Check-out:</strong> {{.CheckOutDisplay}} at 11:00 AM</p>
<p><strong>Guests:</strong> {{.Adults}} adults, {{.Kids}} kids</p>
<p><strong>Total:</strong> {{.TotalDisplay}}</p>
<p><strong>Arrival Time:</strong> {{if .ArrivalTime}}{{.ArrivalTime}}{{else}}Not specified{{end}}</p>
<p><strong>Special Requests:</strong> {{if .SpecialRequests}}{{.SpecialRequests}}{{else}}None{{end}}</p>
<p><strong>Discount Code:</strong> {{if .DiscountCode}}{{.DiscountCode}}{{else}}None{{end}}</p>
{{end}}`

const siteTmpl = `{{define "site"}}{{if .SiteURL}}
<p><a href="{{.SiteURL}}">{{.SiteURL}}</a></p>{{end}}{{end}}`

func parse(name, body string) *template.Template {
	return template.Must(template.Must(template.New(name).Parse(detailsTmpl + siteTmpl)).Parse(body))
}

var (
	guestTmpl = parse("guest", `
<h1>Booking Confirmed!</h1>
<p>Thank you, {{.GuestName}}, for booking with Villa Pura Bali.</p>
{{template "details" .}}
<p>We look forward to welcoming you!</p>
{{template "site" .}}`)

	ownerTmpl = parse("owner", `
<h1>New Booking Received</h1>
<p>A new booking has been made for Villa Pura Bali.</p>
<p><strong>Guest:</strong> {{.GuestName}}</p>
<p><strong>Email:</strong> {{.Email}}</p>
<p><strong>Payment:</strong> {{.PaymentStatus}}</p>
{{template "details" .}}`)

	paymentTmpl = parse("payment", `
<h1>Payment Received</h1>
<p>Thank you, {{.GuestName}}. Your payment for Villa Pura Bali has been received.</p>
{{template "details" .}}
{{template "site" .}}`)
)
