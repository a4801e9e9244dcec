package mail

import (
	"fmt"
	"html"
	"log"
	"strings"

	"github.com/safar/fashion-store/internal/models"
	"github.com/safar/fashion-store/internal/money"
	"gopkg.in/gomail.v2"
)

type Settings struct {
	Host       string
	Port       int
	User       string
	Password   string
	SenderName string
	SiteURL    string
	Currency   string
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer sends transactional email. Without SMTP credentials it only logs.
type Mailer struct {
	dialer   sender
	from     string
	name     string
	siteURL  string
	currency string
}

func NewMailer(s Settings) *Mailer {
	m := &Mailer{
		from:     s.User,
		name:     s.SenderName,
		siteURL:  s.SiteURL,
		currency: s.Currency,
	}

	if s.Host == "" || s.User == "" {
		log.Println("mail: SMTP is not configured, emails will only be logged")
		m.from = "noreply@localhost"
		return m
	}

	m.dialer = gomail.NewDialer(s.Host, s.Port, s.User, s.Password)
	return m
}

func (m *Mailer) send(to, subject, body string) error {
	if m.dialer == nil {
		log.Printf("mail: delivery disabled, would send %q to %s", subject, to)
		return nil
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, m.name)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send %q to %s: %w", subject, to, err)
	}

	log.Printf("mail: sent %q to %s", subject, to)
	return nil
}

func (m *Mailer) price(cents int64) string {
	return money.Format(cents, m.currency)
}

func (m *Mailer) SendOrderConfirmation(order *models.Order) error {
	return m.send(order.CustomerEmail, "Order confirmed "+order.OrderNumber, m.orderConfirmationBody(order))
}

func (m *Mailer) orderConfirmationBody(order *models.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Thank you for your order, %s</h2>", html.EscapeString(order.CustomerName))
	fmt.Fprintf(&b, "<p>Order <strong>%s</strong> is confirmed and being prepared.</p>", html.EscapeString(order.OrderNumber))

	b.WriteString("<table>")
	for _, item := range order.Items {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>x%d</td><td>%s</td></tr>",
			html.EscapeString(item.ProductName), html.EscapeString(variant(item)), item.Quantity, m.price(item.TotalPrice))
	}
	b.WriteString("</table>")

	fmt.Fprintf(&b, "<p>Subtotal: %s</p>", m.price(order.Subtotal))
	if order.DiscountAmount > 0 {
		fmt.Fprintf(&b, "<p>Discount: -%s</p>", m.price(order.DiscountAmount))
	}
	fmt.Fprintf(&b, "<p>Shipping: %s</p>", m.price(order.ShippingCost))
	fmt.Fprintf(&b, "<p><strong>Total: %s</strong></p>", m.price(order.Total))
	fmt.Fprintf(&b, `<p><a href="%s/cuenta/pedidos/%s">View your order</a></p>`, m.siteURL, order.ID)

	return b.String()
}

func (m *Mailer) SendReturnTicket(order *models.Order, ret *models.ReturnRequest) error {
	return m.send(order.CustomerEmail, "Return request "+ret.TicketNumber, returnTicketBody(order, ret))
}

func returnTicketBody(order *models.Order, ret *models.ReturnRequest) string {
	var b strings.Builder
	b.WriteString("<h2>We received your return request</h2>")
	fmt.Fprintf(&b, "<p>Ticket: <strong>%s</strong></p>", html.EscapeString(ret.TicketNumber))
	fmt.Fprintf(&b, "<p>Order: %s</p>", html.EscapeString(order.OrderNumber))
	fmt.Fprintf(&b, "<p>Reason: %s</p>", html.EscapeString(ret.Reason))
	b.WriteString("<p>Keep this ticket number; our team will contact you with the next steps.</p>")

	return b.String()
}

func (m *Mailer) SendRefundConfirmation(order *models.Order, refundNumber string, amount int64) error {
	var b strings.Builder
	b.WriteString("<h2>Your refund has been processed</h2>")
	fmt.Fprintf(&b, "<p>Refund: <strong>%s</strong></p>", html.EscapeString(refundNumber))
	fmt.Fprintf(&b, "<p>Order: %s</p>", html.EscapeString(order.OrderNumber))
	fmt.Fprintf(&b, "<p>Amount refunded: %s</p>", m.price(amount))
	b.WriteString("<p>The amount will appear on your original payment method within 5 to 10 business days.</p>")

	return m.send(order.CustomerEmail, "Refund processed "+refundNumber, b.String())
}

func (m *Mailer) SendNewsletterWelcome(email, firstName, code string) error {
	name := firstName
	if name == "" {
		name = "there"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<h2>Welcome, %s</h2>", html.EscapeString(name))
	fmt.Fprintf(&b, "<p>Use code <strong>%s</strong> on your first order.</p>", html.EscapeString(code))
	fmt.Fprintf(&b, `<p><a href="%s">Start shopping</a></p>`, m.siteURL)

	return m.send(email, "Welcome to the newsletter", b.String())
}

func variant(item models.OrderItem) string {
	var parts []string
	if item.Size != nil && *item.Size != "" {
		parts = append(parts, *item.Size)
	}
	if item.Color != nil && *item.Color != "" {
		parts = append(parts, *item.Color)
	}
	return strings.Join(parts, " / ")
}
