package parser

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"

	"github.com/dharsanguruparan/InvoiceDrop/internal/logger"
	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

// DocumentAIConfig addresses an invoice processor.
type DocumentAIConfig struct {
	ProjectID       string
	Location        string
	ProcessorID     string
	CredentialsFile string
	Timeout         time.Duration
}

// ProcessorName returns the fully qualified processor resource name.
func (c DocumentAIConfig) ProcessorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.ProjectID, c.Location, c.ProcessorID)
}

// DocumentAIParser sends files to a Document AI invoice processor.
type DocumentAIParser struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAI dials the regional Document AI endpoint.
func NewDocumentAI(ctx context.Context, cfg DocumentAIConfig) (*DocumentAIParser, error) {
	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, fmt.Errorf("document ai: project and processor id are required")
	}
	if cfg.Location == "" {
		cfg.Location = "eu"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	opts := []option.ClientOption{
		option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)),
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("document ai client for %s: %w", cfg.Location, err)
	}
	return &DocumentAIParser{client: client, config: cfg, log: logger.WithComponent("parser")}, nil
}

// Close releases the gRPC connection.
func (p *DocumentAIParser) Close() error {
	return p.client.Close()
}

// Parse implements Parser.
func (p *DocumentAIParser) Parse(ctx context.Context, f *model.File, data []byte) (*model.ParseResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	mime := f.ContentType
	if mime == "" {
		mime = "application/pdf"
	}
	resp, err := p.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: p.config.ProcessorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: data, MimeType: mime},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("document ai process: %w", err)
	}
	if resp.GetDocument() == nil {
		return nil, fmt.Errorf("document ai process: empty response")
	}
	res, err := ResultFromDocument(resp.GetDocument())
	if err != nil {
		return nil, err
	}
	p.log.Debug().
		Str("file_id", f.ID).
		Str("supplier", res.Supplier).
		Float64("confidence", res.Confidence).
		Msg("document ai parsed")
	return res, nil
}

// ResultFromDocument maps invoice-processor entities onto a ParseResult. The
// confidence is the mean confidence of the mapped entities.
func ResultFromDocument(doc *documentaipb.Document) (*model.ParseResult, error) {
	res := &model.ParseResult{}
	fields := &res.Fields
	var confSum float64
	var mapped int

	for _, e := range doc.GetEntities() {
		value := strings.TrimSpace(e.GetMentionText())
		known := true
		switch e.GetType() {
		case "supplier_name", "vendor_name":
			res.Supplier = value
		case "invoice_id", "invoice_number":
			fields.InvoiceNumber = value
		case "invoice_date":
			if d, ok := entityDate(e); ok {
				fields.InvoiceDate = &d
			}
		case "total_amount":
			if amt, cur, ok := entityMoney(e); ok {
				fields.Total = amt
				if cur != "" {
					fields.Currency = NormalizeCurrency(cur)
				}
			}
		case "currency":
			fields.Currency = NormalizeCurrency(value)
		case "vat":
			if v, ok := vatFromEntity(e); ok {
				fields.VatBreakdown = append(fields.VatBreakdown, v)
			}
		case "eur_vat_amount":
			if amt, _, ok := entityMoney(e); ok {
				fields.EURVatAmount = amt
			}
		default:
			known = false
		}
		if known {
			confSum += float64(e.GetConfidence())
			mapped++
		}
	}
	if mapped == 0 {
		return nil, ErrNothingExtracted
	}
	if fields.Currency == "" {
		fields.Currency = "EUR"
	}
	text := doc.GetText()
	res.TaxFree = taxFreeRe.MatchString(text)
	res.CreditNote = creditRe.MatchString(text) || fields.Total.IsNegative()
	res.Confidence = confSum / float64(mapped)
	CrossCheck(res)
	return res, nil
}

func vatFromEntity(e *documentaipb.Document_Entity) (model.VatAmount, bool) {
	var v model.VatAmount
	var haveVat bool
	for _, prop := range e.GetProperties() {
		switch prop.GetType() {
		case "vat/tax_rate":
			rate := strings.TrimSuffix(strings.TrimSpace(prop.GetMentionText()), "%")
			if d, err := model.ParseAmount(rate); err == nil {
				v.Rate = d
			}
		case "vat/tax_amount":
			if amt, _, ok := entityMoney(prop); ok {
				v.Vat, haveVat = amt, true
			}
		case "vat/amount":
			if amt, _, ok := entityMoney(prop); ok {
				v.Net = amt
			}
		}
	}
	return v, haveVat
}

func entityMoney(e *documentaipb.Document_Entity) (decimal.Decimal, string, bool) {
	if m := e.GetNormalizedValue().GetMoneyValue(); m != nil {
		amt := decimal.New(m.GetUnits(), 0).Add(decimal.New(int64(m.GetNanos()), -9))
		return amt, m.GetCurrencyCode(), true
	}
	amt, err := model.ParseAmount(e.GetMentionText())
	if err != nil {
		return decimal.Zero, "", false
	}
	return amt, "", true
}

func entityDate(e *documentaipb.Document_Entity) (time.Time, bool) {
	if d := e.GetNormalizedValue().GetDateValue(); d != nil && d.GetYear() > 0 {
		return time.Date(int(d.GetYear()), time.Month(d.GetMonth()), int(d.GetDay()), 0, 0, 0, 0, time.UTC), true
	}
	return parseDate(strings.TrimSpace(e.GetMentionText()))
}
