package core

// Flags emitted by the analyzer
const (
	FlagVerifiedSender     = "Verified Sender"
	FlagSuspiciousDomain   = "Suspicious Domain"
	FlagPhishingAttempt    = "Phishing Attempt"
	FlagSuspiciousContent  = "Suspicious Content"
	FlagUrgentLanguage     = "Urgent Language"
	FlagAutomatedSender    = "Automated Sender"
	FlagMissingUnsubscribe = "Missing Unsubscribe"
	FlagSocialPlatform     = "Social Platform"
	FlagPromotionalContent = "Promotional Content"
	FlagServiceUpdate      = "Service Update"
	FlagLegitimateDomain   = "Legitimate Domain"
	FlagStandardEmail      = "Standard Email"
)

// Fallbacks used when headers are missing
const (
	NoSubject     = "No Subject"
	UnknownSender = "Unknown Sender"
	InvalidDate   = "Invalid Date"
)

// Score weights
const (
	baseTrustScore          = 50
	trustedDomainBonus      = 30
	suspiciousDomainPenalty = -40
	suspiciousKeywordCost   = -8
	phishingKeywordCost     = -15
	urgencyPenalty          = -10
	automatedSenderBonus    = 5
	missingUnsubscribeCost  = -15

	minTrustScore = 0
	maxTrustScore = 100

	suspiciousThreshold = 40
	ultraThreshold      = 20
	legitimateThreshold = 70
)

var trustedDomains = map[string]struct{}{
	"gmail.com":     {},
	"github.com":    {},
	"linkedin.com":  {},
	"amazon.com":    {},
	"netflix.com":   {},
	"google.com":    {},
	"microsoft.com": {},
	"apple.com":     {},
	"facebook.com":  {},
	"twitter.com":   {},
	"instagram.com": {},
	"youtube.com":   {},
	"paypal.com":    {},
	"stripe.com":    {},
}

var suspiciousDomains = map[string]struct{}{
	"suspicious-domain.com": {},
	"fake-bank.net":         {},
	"lottery-scam.com":      {},
	"phishing-site.org":     {},
	"malware-host.biz":      {},
}

var socialDomains = map[string]struct{}{
	"linkedin.com":  {},
	"twitter.com":   {},
	"facebook.com":  {},
	"instagram.com": {},
	"youtube.com":   {},
}

// Keyword lists are ordered; flags are appended in list order.
var suspiciousKeywords = []string{
	"urgent",
	"click here",
	"verify now",
	"suspended",
	"winner",
	"congratulations",
	"limited time",
	"act now",
	"claim",
	"prize",
	"lottery",
	"inheritance",
	"nigerian prince",
	"bank account",
	"social security",
	"tax refund",
}

var phishingKeywords = []string{
	"verify account",
	"confirm identity",
	"update payment",
	"suspended account",
	"click immediately",
	"avoid suspension",
	"security alert",
	"unusual activity",
}

var urgencyWords = []string{"urgent", "immediate", "asap", "now", "quickly", "hurry"}

var promotionalWords = []string{"offer", "sale", "deal", "discount"}

func isTrustedDomain(domain string) bool {
	_, ok := trustedDomains[domain]
	return ok
}

func isSuspiciousDomain(domain string) bool {
	_, ok := suspiciousDomains[domain]
	return ok
}

func isSocialDomain(domain string) bool {
	_, ok := socialDomains[domain]
	return ok
}
