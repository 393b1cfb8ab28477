package receipt

import (
	"context"
	"io"
	"testing"
	"time"

	"cinema_pos/events"
	"cinema_pos/model"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

func paidOrder() *model.Order {
	paidAt := time.Date(2026, 3, 2, 14, 5, 0, 0, time.UTC)
	return &model.Order{
		ID:            "0195f0aa-0000-7000-8000-000000000001",
		OrderNumber:   "GAL-20260302-0012",
		TheaterId:     4,
		CustomerName:  "Kiran",
		CustomerEmail: "kiran@example.com",
		Seat:          "F7",
		Source:        model.SourceQRCode,
		Status:        model.OrderPaid,
		Payment:       model.Payment{Status: model.PaymentPaid, Method: model.MethodUPI, PaidAt: &paidAt},
		Pricing:       model.Pricing{Subtotal: 30000, CGST: 500, SGST: 500, Tax: 1000, Total: 31000},
		Items: []model.OrderItem{
			{Name: "Caramel Popcorn", Category: "food", Quantity: 2, UnitPrice: 10000, TaxRate: 5, LineTotal: 21000, Variant: "Large"},
			{Name: "Cold Coffee", Category: "beverages", Quantity: 1, UnitPrice: 10000, TaxRate: 0, LineTotal: 10000, SpecialInstructions: "no ice"},
		},
		CreatedAt: paidAt.Add(-time.Minute),
	}
}

type theaters struct{}

func (theaters) Theater(ctx context.Context, id uint) (*model.Theater, error) {
	return &model.Theater{DTO: model.DTO{ID: id}, Name: "Galaxy Andheri"}, nil
}

type sentMail struct{ msgs []*gomail.Message }

func (s *sentMail) DialAndSend(m ...*gomail.Message) error {
	s.msgs = append(s.msgs, m...)
	return nil
}

type fakeS3 struct {
	keys   []string
	bodies []string
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(in.Body)
	f.keys = append(f.keys, *in.Key)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{URL: "https://receipts.s3.example/" + *in.Key + "?sig=1"}, nil
}

func TestBillFromOrderUsesSnapshot(t *testing.T) {
	b := BillFromOrder(paidOrder(), "Galaxy Andheri")
	assert.Equal(t, []string{"food", "beverages"}, b.Categories())
	assert.Equal(t, time.Date(2026, 3, 2, 14, 5, 0, 0, time.UTC), b.IssuedAt)

	docket := b.ForCategory("beverages")
	require.Len(t, docket.Lines, 1)
	assert.Equal(t, "Cold Coffee", docket.Lines[0].Name)
	assert.Len(t, b.Lines, 2)

	assert.Equal(t, "310.00", Rupees(31000))
	assert.Equal(t, "0.05", Rupees(5))
	assert.Equal(t, "receipts/4/2026-03-02/GAL-20260302-0012.html", Key(b))
}

func TestRenderTemplates(t *testing.T) {
	r, err := NewRenderer("https://pos.example/")
	require.NoError(t, err)
	b := BillFromOrder(paidOrder(), "Galaxy Andheri")

	html, err := r.Render(TemplateGSTBill, b, true)
	require.NoError(t, err)
	out := string(html)
	assert.Contains(t, out, "GAL-20260302-0012")
	assert.Contains(t, out, "310.00")
	assert.Contains(t, out, "2 x Caramel Popcorn (Large)")
	assert.Contains(t, out, "data:image/png;base64,")
	assert.Contains(t, out, "window.print()")

	html, err = r.Render(TemplateCategoryDocket, b.ForCategory("beverages"), false)
	require.NoError(t, err)
	out = string(html)
	assert.Contains(t, out, "beverages")
	assert.Contains(t, out, "no ice")
	assert.NotContains(t, out, "Caramel Popcorn")

	_, err = r.Render("coupon", b, false)
	assert.Error(t, err)
}

func TestPaidEventArchivesAndMails(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)
	mail := &sentMail{}
	store := &fakeS3{}
	svc := NewService(r, theaters{}, NewMailerWithSender(mail, "pos@example.com"), NewS3ArchiveWithClient(store, store, "receipts"))
	handler := svc.Handler()
	ctx := context.Background()

	pending := paidOrder()
	pending.Status = model.OrderPendingPayment
	require.NoError(t, handler(ctx, events.Message{Status: model.OrderPendingPayment, Order: pending}))
	assert.Empty(t, mail.msgs)

	require.NoError(t, handler(ctx, events.Message{Status: model.OrderPaid, Order: paidOrder()}))
	require.Len(t, mail.msgs, 1)
	assert.Equal(t, []string{"kiran@example.com"}, mail.msgs[0].GetHeader("To"))
	assert.Equal(t, []string{"receipts/4/2026-03-02/GAL-20260302-0012.html"}, store.keys)
	assert.Contains(t, store.bodies[0], "Galaxy Andheri")

	url, err := svc.ArchivedURL(ctx, paidOrder())
	require.NoError(t, err)
	assert.Equal(t, "https://receipts.s3.example/receipts/4/2026-03-02/GAL-20260302-0012.html?sig=1", url)
}
