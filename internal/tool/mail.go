package tool

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/workspace-agent/internal/approval"
	"github.com/hal9000y/workspace-agent/internal/fetch"
	"github.com/hal9000y/workspace-agent/internal/query"
	"github.com/hal9000y/workspace-agent/internal/validate"
)

// MailNotSent is the result text of every send that was not approved.
const MailNotSent = "Mail not sent."

type mailSvc interface {
	Profile(ctx context.Context) (*gmail.Profile, error)
	CreateDraft(ctx context.Context, raw string) (*gmail.Draft, error)
	SendMessage(ctx context.Context, raw string) (*gmail.Message, error)
	ListMessages(ctx context.Context, q string, maxResults int64, includeSpamTrash bool) (*gmail.ListMessagesResponse, error)
}

type detailFetcher interface {
	FetchAll(ctx context.Context, ids []string) (fetch.Results, error)
}

type approvalGate interface {
	Guard(ctx context.Context, req approval.Request, action func(context.Context) error) (*approval.Rejected, error)
}

type ProfileResponse struct {
	EmailAddress  string `json:"email_address"`
	MessagesTotal int64  `json:"messages_total"`
	ThreadsTotal  int64  `json:"threads_total"`
	HistoryID     uint64 `json:"history_id,omitempty"`
}

type CreateDraftRequest struct {
	Content string `json:"mail_content"`
	Subject string `json:"mail_subject"`
	Dest    string `json:"mail_dest"`
}

type DraftResponse struct {
	DraftID   string `json:"draft_id"`
	MessageID string `json:"message_id,omitempty"`
}

type SendMailRequest struct {
	Content      string `json:"mail_content"`
	Subject      string `json:"mail_subject"`
	Dest         string `json:"mail_dest"`
	ApprovalFlow bool   `json:"approval_flow"`
}

type SendMailResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id,omitempty"`
}

type MailListRequest struct {
	Recipients       []string `json:"recipients"`
	Subject          string   `json:"mail_subject"`
	State            string   `json:"mail_state"`
	Label            string   `json:"label"`
	Folder           string   `json:"folder"`
	StartDate        string   `json:"start_date"`
	EndDate          string   `json:"end_date"`
	MaxResult        int64    `json:"max_result"`
	IncludeSpamTrash bool     `json:"include_spam_trash"`
}

func (r MailListRequest) filter() query.FilterSpec {
	return query.FilterSpec{
		Recipients:       r.Recipients,
		Subject:          r.Subject,
		State:            r.State,
		Label:            r.Label,
		Folder:           r.Folder,
		StartDate:        r.StartDate,
		EndDate:          r.EndDate,
		MaxResults:       r.MaxResult,
		IncludeSpamTrash: r.IncludeSpamTrash,
	}
}

type MailListResponse struct {
	Query  string          `json:"query"`
	Total  int             `json:"total"`
	Mails  []*fetch.Detail `json:"mails"`
	Failed []FailedMail    `json:"failed,omitempty"`
	// Partial summarises the failed fetches, empty when every fetch succeeded.
	Partial string `json:"partial_failure,omitempty"`
}

// FailedMail marks a listed message whose details could not be fetched.
type FailedMail struct {
	ID    string `json:"mail_id"`
	Error string `json:"error"`
}

// NewMail creates the mail tools. gate guards send_mail when the caller
// asks for the approval flow.
func NewMail(svc mailSvc, fetcher detailFetcher, gate approvalGate) *Mail {
	return &Mail{
		svc:     svc,
		fetcher: fetcher,
		gate:    gate,
	}
}

// Mail implements the Gmail tools.
type Mail struct {
	svc     mailSvc
	fetcher detailFetcher
	gate    approvalGate
}

func (m *Mail) Tools() []Tool {
	content := Param{Name: "mail_content", Kind: KindString, Required: true, Description: "Plain text body of the mail"}
	subject := Param{Name: "mail_subject", Kind: KindString, Required: true, Description: "Subject of the mail", Rule: singleLine}

	return []Tool{
		{
			Name:        "get_profile",
			Title:       "Get profile",
			Description: "Get the mail address and mailbox counters of the signed-in user",
			Handler:     Func(m.GetProfile),
		},
		{
			Name:        "create_draft",
			Title:       "Create draft",
			Description: "Create a draft mail; the recipient is optional",
			Schema: Schema{Params: []Param{
				content,
				subject,
				{Name: "mail_dest", Kind: KindString, Description: "Recipient mail address", Rule: validate.Email},
			}},
			Handler: Func(m.CreateDraft),
		},
		{
			Name:        "send_mail",
			Title:       "Send mail",
			Description: "Send a mail. Set approval_flow to ask the user for confirmation before sending",
			Destructive: true,
			Schema: Schema{Params: []Param{
				content,
				subject,
				{Name: "mail_dest", Kind: KindString, Required: true, Description: "Recipient mail address", Rule: validate.Email},
				{Name: "approval_flow", Kind: KindBoolean, Default: false, Description: "Ask the user to confirm before sending"},
			}},
			Handler: Func(m.SendMail),
		},
		{
			Name:        "get_mail_list",
			Title:       "List mails",
			Description: "Search mails by sender, subject, state, label, folder and date range and return their subject, date and body",
			Schema: Schema{
				Params: []Param{
					{Name: "recipients", Kind: KindStringList, Description: "Sender addresses to match; any of them", Rule: validate.Email},
					{Name: "mail_subject", Kind: KindString, Description: "Text the subject must contain", Rule: searchPhrase},
					{Name: "mail_state", Kind: KindString, Description: "Mail state", Enum: query.States},
					{Name: "label", Kind: KindString, Description: "Label name", Rule: singleToken},
					{Name: "folder", Kind: KindString, Default: query.FolderInbox, Description: "Folder to search", Enum: query.Folders},
					{Name: "start_date", Kind: KindString, Description: "Only mails after this date, YYYY/MM/DD", Rule: validate.CalendarDate},
					{Name: "end_date", Kind: KindString, Description: "Only mails before this date, YYYY/MM/DD", Rule: validate.CalendarDate},
					{Name: "max_result", Kind: KindInteger, Default: int64(query.DefaultMaxResults), Min: 1, Max: 100, Description: "Maximum number of mails"},
					{Name: "include_spam_trash", Kind: KindBoolean, Default: false, Description: "Include spam and trash"},
				},
			},
			Handler: Func(m.GetMailList),
		},
	}
}

func (m *Mail) GetProfile(ctx context.Context, _ struct{}) (any, error) {
	p, err := m.svc.Profile(ctx)
	if err != nil {
		return nil, external("users.getProfile", err)
	}

	return ProfileResponse{
		EmailAddress:  p.EmailAddress,
		MessagesTotal: p.MessagesTotal,
		ThreadsTotal:  p.ThreadsTotal,
		HistoryID:     p.HistoryId,
	}, nil
}

func (m *Mail) CreateDraft(ctx context.Context, in CreateDraftRequest) (any, error) {
	d, err := m.svc.CreateDraft(ctx, composeRaw(in.Dest, in.Subject, in.Content))
	if err != nil {
		return nil, external("drafts.create", err)
	}

	res := DraftResponse{DraftID: d.Id}
	if d.Message != nil {
		res.MessageID = d.Message.Id
	}

	return res, nil
}

func (m *Mail) SendMail(ctx context.Context, in SendMailRequest) (any, error) {
	var sent *gmail.Message
	send := func(ctx context.Context) error {
		msg, err := m.svc.SendMessage(ctx, composeRaw(in.Dest, in.Subject, in.Content))
		if err != nil {
			return external("messages.send", err)
		}
		sent = msg
		return nil
	}

	if !in.ApprovalFlow {
		if err := send(ctx); err != nil {
			return nil, err
		}
		return sentResponse(sent), nil
	}

	rej, err := m.gate.Guard(ctx, approval.Request{
		Tool: "send_mail",
		Message: fmt.Sprintf(
			"Do you want to send the mail with the following data?\nRecipient: %s\nSubject: %s\nContent: %s",
			in.Dest, in.Subject, in.Content,
		),
		Rejection: MailNotSent,
	}, send)
	if err != nil {
		return nil, err
	}
	if rej != nil {
		return rej, nil
	}

	return sentResponse(sent), nil
}

func sentResponse(msg *gmail.Message) SendMailResponse {
	return SendMailResponse{Status: "sent", MessageID: msg.Id, ThreadID: msg.ThreadId}
}

func (m *Mail) GetMailList(ctx context.Context, in MailListRequest) (any, error) {
	f := in.filter()
	q := query.Encode(f)

	list, err := m.svc.ListMessages(ctx, q, f.Limit(), f.IncludeSpamTrash)
	if err != nil {
		return nil, external("messages.list", err)
	}

	ids := make([]string, 0, len(list.Messages))
	for _, msg := range list.Messages {
		ids = append(ids, msg.Id)
	}

	results, err := m.fetcher.FetchAll(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("fetcher.FetchAll failed: %w", err)
	}

	res := MailListResponse{Query: q, Mails: make([]*fetch.Detail, 0, len(ids))}
	pf := results.PartialFailure()
	for _, r := range results.Ordered(ids) {
		if pf != nil {
			if ferr, failed := pf.Failed[r.ID]; failed {
				res.Failed = append(res.Failed, FailedMail{ID: r.ID, Error: ferr.Error()})
				continue
			}
		}
		res.Mails = append(res.Mails, r.Detail)
	}
	res.Total = len(res.Mails)
	if pf != nil {
		res.Partial = pf.Error()
	}

	return res, nil
}

// composeRaw builds a base64url encoded RFC 2822 plain text message.
func composeRaw(to, subject, body string) string {
	var b strings.Builder
	if to != "" {
		b.WriteString("To: " + to + "\r\n")
	}
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)

	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}

func singleLine(field, value string) (string, error) {
	if strings.ContainsAny(value, "\r\n") {
		return "", validate.Errorf(field, "must be a single line")
	}

	return value, nil
}

// searchPhrase rejects text that would terminate the quoted subject clause.
func searchPhrase(field, value string) (string, error) {
	if strings.Contains(value, `"`) {
		return "", validate.Errorf(field, "must not contain double quotes")
	}

	return singleLine(field, value)
}

func singleToken(field, value string) (string, error) {
	if strings.ContainsAny(value, " \t\r\n") {
		return "", validate.Errorf(field, "must not contain whitespace")
	}

	return value, nil
}
