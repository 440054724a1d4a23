package services

import (
	"fmt"

	"honeypot-lab/internal/domain/models"
)

// ClosingReply is sent once a session reaches its turn ceiling
const ClosingReply = "Thank you for the information. I need to verify this with my bank first."

var initialConcernReplies = []string{
	"Oh no! My account is suspended? I'm really worried now... how do I fix this?",
	"This is scary! What exactly do I need to do to verify my account?",
	"I'm panicking a bit... is this verification done through my phone or UPI?",
	"Wait, what happened to my account? How do I complete this verification?",
	"I'm so confused and worried... can you help me understand what I need to do?",
	"This is really concerning me... what's the quickest way to resolve this?",
}

var urgentClarificationReplies = []string{
	"Why is this so urgent? I'm getting nervous about rushing into anything...",
	"How much time do I have? I don't want to make any mistakes with my banking...",
	"Should I call my bank first to confirm this? I'm a bit worried about scams...",
	"Is there an official way to verify this? I want to be extra careful...",
	"Can you give me more details? I need to understand what's happening...",
}

var calmClarificationReplies = []string{
	"Should I use my UPI app or go to the bank directly for this?",
	"I'm not very tech-savvy... can you send me some official verification link?",
	"My friend told me to be careful... should I use PhonePe, Paytm, or bank transfer?",
	"I'm a bit nervous about this... what's the safest way to complete verification?",
	"I usually use mobile banking... will that work for this verification?",
}

var amountPaymentTemplates = []string{
	"I'm ready to pay %[1]s but nervous... can you please give me the exact details again?",
	"So I need to send %[1]s? Which payment method is safest for this?",
	"Let me understand - %[1]s will fix my account? How do I send it?",
	"I want to pay %[1]s correctly... can you slowly tell me the steps?",
	"My hands are shaking... what's the exact way to send %[1]s?",
}

var genericPaymentReplies = []string{
	"I'm ready to pay but nervous... can you please give me the UPI ID again?",
	"I don't want to send money to wrong account... which bank should I use if UPI fails?",
	"My hands are shaking... what's the exact UPI ID I should transfer to?",
	"I'm opening my PhonePe now... can you confirm the payment details once more?",
	"I want to be extra careful... can you slowly tell me the UPI ID?",
}

var upiAndBankTemplates = []string{
	"Let me confirm everything - UPI %[1]s and account %[2]s, is that all correct?",
	"I wrote down UPI %[1]s and account %[2]s... did I get both right?",
	"So it's either UPI %[1]s or account %[2]s? Which one is better?",
	"I want to double-check: %[1]s for UPI and %[2]s for bank transfer, yes?",
	"My eyesight isn't great... can you confirm %[1]s and %[2]s are correct?",
}

var upiOnlyTemplates = []string{
	"Wait, let me write this down... you said UPI ID %[1]s, is that correct?",
	"I want to make sure I heard right... the UPI ID is %[1]s, yes?",
	"Let me confirm because I'm nervous... UPI ID %[1]s - is this right?",
	"I don't want to make mistakes... you mentioned %[1]s, correct?",
	"Can you spell out %[1]s slowly? I want to be absolutely sure...",
}

var bankOnlyTemplates = []string{
	"I'm writing this down carefully... account number %[1]s, is that right?",
	"Let me double-check... the account number is %[1]s, correct?",
	"I want to be sure... you said account %[1]s - did I hear correctly?",
	"I'm a bit slow with numbers... account %[1]s, yes?",
	"Let me verify once more... account number %[1]s, right?",
}

var missingDetailsReplies = []string{
	"I'm ready to send the money... but what's your UPI ID or account number?",
	"You haven't given me the payment details yet... where should I send the money?",
	"I have my phone ready... can you please share your UPI ID?",
	"I'm opening my banking app... what account should I transfer to?",
	"I want to complete this quickly... please give me your payment details...",
}

var missingAmountReplies = []string{
	"How much exactly do I need to send? I want to send the right amount...",
	"What's the exact fee amount? I don't want to send too little or too much...",
	"Can you tell me the precise amount? I'm ready to pay...",
	"I have my UPI open... just tell me how much to send...",
	"What's the verification fee? I want to get this done quickly...",
}

var followUpReplies = []string{
	"Is there anything else I need to know? I want to make sure I do this right...",
	"After I send the money, what happens next? Will my account be fixed immediately?",
	"Should I send a screenshot after payment? How will you confirm you received it?",
	"Is there a reference number I should mention? I want to be thorough...",
	"How long does it take for the verification to complete after payment?",
}

var exitReplies = []string{
	"I need to check with my husband first... he handles our banking. I'll call back soon",
	"My phone battery is dying... let me charge it first so I don't lose connection during payment",
	"I should verify this with my bank branch tomorrow... they know me personally there",
	"Let me gather all my documents first... I want to make sure I have everything ready",
	"I need to ask my son to help me... he's better with technology than me",
	"Let me finish what I'm doing first... I don't want to rush such important things",
}

// CandidateReplies returns the rendered reply pool for a stage given the
// conversation signals. Every reply the generator can produce for these
// inputs is in the returned slice.
func CandidateReplies(stage models.Stage, signals ConversationSignals) []string {
	switch stage {
	case models.StageInitialConcern:
		return initialConcernReplies

	case models.StageSeekingClarification:
		if signals.MentionsUrgency {
			return urgentClarificationReplies
		}
		return calmClarificationReplies

	case models.StagePaymentDiscussion:
		if amount := signals.FirstAmount(); amount != "" {
			return render(amountPaymentTemplates, amount)
		}
		return genericPaymentReplies

	case models.StageConfirmingDetails:
		upi, bank := signals.LatestUPIID(), signals.LatestBankAccount()
		switch {
		case upi != "" && bank != "":
			return render(upiAndBankTemplates, upi, bank)
		case upi != "":
			return render(upiOnlyTemplates, upi)
		case bank != "":
			return render(bankOnlyTemplates, bank)
		}
		return missingDetailsReplies

	case models.StageExtractingInformation:
		switch {
		case !signals.HasPaymentToken():
			return missingDetailsReplies
		case len(signals.Amounts) == 0:
			return missingAmountReplies
		}
		return followUpReplies

	default:
		return exitReplies
	}
}

func render(templates []string, args ...any) []string {
	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = fmt.Sprintf(t, args...)
	}
	return out
}
