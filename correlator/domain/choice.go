package domain

import "strings"

// Choice é a opção escolhida pelo destinatário ao clicar no link do e-mail.
type Choice string

const (
	CloseLoan    Choice = "close_loan"
	SettleLoan   Choice = "settle_loan"
	NeverPay     Choice = "never_pay"
	NeedMoreTime Choice = "need_more_time"
)

// AllChoices mantém a ordem em que os botões aparecem no e-mail.
var AllChoices = []Choice{CloseLoan, SettleLoan, NeverPay, NeedMoreTime}

var choiceLabels = map[Choice]string{
	CloseLoan:    "🔵 Close my loan",
	SettleLoan:   "💠 Settle my loan",
	NeverPay:     "⚠️ I will never pay",
	NeedMoreTime: "⏳ Need more time",
}

var choicePaths = map[Choice]string{
	CloseLoan:    "close",
	SettleLoan:   "settle",
	NeverPay:     "never",
	NeedMoreTime: "time",
}

// pathChoices aceita também "human", que leva para need_more_time.
var pathChoices = map[string]Choice{
	"settle": SettleLoan,
	"close":  CloseLoan,
	"never":  NeverPay,
	"time":   NeedMoreTime,
	"human":  NeedMoreTime,
}

// Copy é o texto da resposta para uma escolha.
type Copy struct {
	Title string
	Body  string
}

var choiceCopy = map[Choice]Copy{
	CloseLoan:    {Title: "You want to close your loan", Body: "We'll share closure steps shortly."},
	SettleLoan:   {Title: "You want settlement", Body: "We'll evaluate and send a proposal."},
	NeverPay:     {Title: "You cannot / won't pay", Body: "We understand — we'll review your case."},
	NeedMoreTime: {Title: "You need time", Body: "Noted. We'll share extension options."},
}

// ChoiceFromPath traduz o caminho do link (/settle, /close, ...) para a escolha.
func ChoiceFromPath(path string) (Choice, bool) {
	c, ok := pathChoices[strings.ToLower(strings.Trim(path, "/ "))]
	return c, ok
}

func (c Choice) Valid() bool {
	_, ok := choiceLabels[c]
	return ok
}

func (c Choice) Label() string {
	if l, ok := choiceLabels[c]; ok {
		return l
	}
	return string(c)
}

// Path devolve o segmento de URL canônico da escolha ("unknown" se inválida).
func (c Choice) Path() string {
	if p, ok := choicePaths[c]; ok {
		return p
	}
	return "unknown"
}

func (c Choice) Copy() Copy {
	if cp, ok := choiceCopy[c]; ok {
		return cp
	}
	return Copy{Title: "Noted", Body: "Response received"}
}

// Remaining devolve todas as opções menos a escolhida, na ordem de AllChoices.
func (c Choice) Remaining() []Choice {
	out := make([]Choice, 0, len(AllChoices))
	for _, o := range AllChoices {
		if o != c {
			out = append(out, o)
		}
	}
	return out
}
