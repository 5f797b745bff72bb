package turn

import "github.com/bdobrica/Shiori/internal/shiori/nlp"

// Prompts holds every fixed text the orchestrator emits or sends to the
// model. Fixed replies are returned verbatim to the user.
type Prompts struct {
	ResetAck      string
	Clarification string
	NoContact     string
	GenericError  string
	RateLimited   string
	ContactHeader string

	// ContactLabels name the client, porteur, referent, MOA/MOEG contact and
	// guichet fields, in that order.
	ContactLabels [5]string

	// RecordLabels name the affair id, title, state, request type and
	// description of a project record. The remaining record fields reuse
	// ContactLabels.
	RecordLabels [5]string

	// SpecifyFile is the "please specify a file" reply per topic. The
	// RequestGeneral entry is the fallback for any other type.
	SpecifyFile map[nlp.RequestType]string

	// TypeHints are appended to the system prompt of a standard generation.
	TypeHints map[nlp.RequestType]string

	System          string
	ExplicitFiles   string
	AffairSummary   string
	Grounded        string
	Retrieved       string
	Condensed       string
	Memory          string
	Compare         string
	Explain         string
	TruncatedMarker string
	Unreadable      string
}

// FrenchPrompts is the default prompt set.
var FrenchPrompts = Prompts{
	ResetAck:      "C'est noté : la mémoire de notre conversation a été réinitialisée.",
	Clarification: "Pouvez-vous préciser votre demande ? Indiquez par exemple le document, l'affaire ou le point qui vous intéresse.",
	NoContact:     "Aucun contact n'est renseigné pour cette affaire.",
	GenericError:  "Désolé, une erreur est survenue pendant la préparation de la réponse. Merci de réessayer dans quelques instants.",
	RateLimited:   "Vous avez envoyé beaucoup de messages en peu de temps. Merci de patienter une minute avant de réessayer.",
	ContactHeader: "Voici les contacts renseignés pour l'affaire",
	ContactLabels: [5]string{"Client", "Porteur", "Référent", "Contact MOA/MOEG", "Guichet"},
	RecordLabels:  [5]string{"Affaire", "Titre", "État", "Type de demande", "Description"},
	SpecifyFile: map[nlp.RequestType]string{
		nlp.RequestSummary:  "Pour vous proposer un résumé, précisez le document concerné (son nom suffit) ou joignez-le à votre message.",
		nlp.RequestAnalysis: "Pour mener cette analyse, indiquez le document à examiner ou joignez-le à votre message.",
		nlp.RequestQuestion: "Je n'ai pas trouvé d'élément pour répondre. Précisez le document dans lequel chercher ou joignez-le à votre message.",
		nlp.RequestGeneral:  "Précisez le fichier ou l'affaire concernés pour que je puisse vous aider.",
	},
	TypeHints: map[nlp.RequestType]string{
		nlp.RequestSummary:      "La demande est un résumé : va à l'essentiel, structure la réponse en points clés.",
		nlp.RequestAnalysis:     "La demande est une analyse : identifie les points forts, les points faibles, les risques et les incohérences.",
		nlp.RequestQuestion:     "La demande est une question : réponds précisément et cite la source quand elle existe.",
		nlp.RequestFileSpecific: "La demande porte sur un document : appuie-toi uniquement sur son contenu.",
		nlp.RequestMail:         "La demande est la rédaction d'un message : propose un texte prêt à envoyer, au ton professionnel.",
		nlp.RequestContact:      "La demande concerne des interlocuteurs : reste factuel.",
		nlp.RequestGeneral:      "Réponds de façon concise et professionnelle.",
	},
	System: "Tu es l'assistant d'un portail de gestion de projets. Tu aides les utilisateurs à comprendre leurs affaires et leurs documents. " +
		"Réponds en français, de façon claire et concise. N'invente jamais d'information absente des documents ou du contexte fourni.",
	ExplicitFiles: "Tu es l'assistant d'un portail de gestion de projets. Réponds UNIQUEMENT à partir du contenu des documents ci-dessous. " +
		"Si la réponse ne s'y trouve pas, dis-le clairement.\n\n%s",
	AffairSummary: "Tu es l'assistant d'un portail de gestion de projets. Rédige un paragraphe de synthèse clair sur l'affaire décrite ci-dessous, " +
		"en tenant compte de la demande de l'utilisateur. N'utilise que ces informations.\n\n%s",
	Grounded: "Tu es l'assistant d'un portail de gestion de projets. Réponds à partir des extraits de documents ci-dessous. " +
		"Si les extraits ne suffisent pas, dis-le.\n\n%s",
	Retrieved:       "Extraits de documents pertinents :\n%s",
	Condensed:       "Résumé des échanges précédents :\n%s",
	Memory:          "Contexte mémorisé :\n%s",
	Compare:         "Compare les documents suivants pour répondre à la question de l'utilisateur. Mets en évidence les différences et les points communs.\n\n%s",
	Explain:         "Résume ou explique le document suivant en fonction de la question de l'utilisateur.\n\n%s",
	TruncatedMarker: "[contenu tronqué]",
	Unreadable:      "[document illisible]",
}

// EnglishPrompts is the English prompt set.
var EnglishPrompts = Prompts{
	ResetAck:      "Done: the memory of our conversation has been reset.",
	Clarification: "Could you clarify your request? For example, name the document, the affair or the point you are interested in.",
	NoContact:     "No contact is on file for this affair.",
	GenericError:  "Sorry, something went wrong while preparing the answer. Please try again in a moment.",
	RateLimited:   "You have sent many messages in a short time. Please wait a minute before trying again.",
	ContactHeader: "Here are the contacts on file for the affair",
	ContactLabels: [5]string{"Client", "Porteur", "Referent", "MOA/MOEG contact", "Guichet"},
	RecordLabels:  [5]string{"Affair", "Title", "State", "Request type", "Description"},
	SpecifyFile: map[nlp.RequestType]string{
		nlp.RequestSummary:  "To give you a summary, please name the document (its name is enough) or attach it to your message.",
		nlp.RequestAnalysis: "To run this analysis, please name the document to examine or attach it to your message.",
		nlp.RequestQuestion: "I could not find anything to answer with. Please name the document to search or attach it to your message.",
		nlp.RequestGeneral:  "Please name the file or the affair so that I can help you.",
	},
	TypeHints: map[nlp.RequestType]string{
		nlp.RequestSummary:      "The request is a summary: stick to the essentials, structure the answer as key points.",
		nlp.RequestAnalysis:     "The request is an analysis: identify strengths, weaknesses, risks and inconsistencies.",
		nlp.RequestQuestion:     "The request is a question: answer precisely and cite the source when there is one.",
		nlp.RequestFileSpecific: "The request is about a document: rely on its content only.",
		nlp.RequestMail:         "The request is to draft a message: propose a ready-to-send text in a professional tone.",
		nlp.RequestContact:      "The request is about people to contact: stay factual.",
		nlp.RequestGeneral:      "Answer concisely and professionally.",
	},
	System: "You are the assistant of a project-management portal. You help users understand their affairs and their documents. " +
		"Answer clearly and concisely. Never invent information that is not in the documents or the provided context.",
	ExplicitFiles: "You are the assistant of a project-management portal. Answer ONLY from the content of the documents below. " +
		"If the answer is not there, say so clearly.\n\n%s",
	AffairSummary: "You are the assistant of a project-management portal. Write a clear summary paragraph about the affair described below, " +
		"taking the user's request into account. Use only this information.\n\n%s",
	Grounded: "You are the assistant of a project-management portal. Answer from the document excerpts below. " +
		"If the excerpts are not enough, say so.\n\n%s",
	Retrieved:       "Relevant document excerpts:\n%s",
	Condensed:       "Summary of the previous exchanges:\n%s",
	Memory:          "Remembered context:\n%s",
	Compare:         "Compare the following documents to answer the user's question. Highlight differences and common points.\n\n%s",
	Explain:         "Summarise or explain the following document according to the user's question.\n\n%s",
	TruncatedMarker: "[content truncated]",
	Unreadable:      "[unreadable document]",
}

// PromptsFor returns the prompt set of a language code. Unknown codes get
// the French set.
func PromptsFor(lang string) Prompts {
	if lang == "en" {
		return EnglishPrompts
	}
	return FrenchPrompts
}

func (p Prompts) specifyFile(t nlp.RequestType) string {
	if s, ok := p.SpecifyFile[t]; ok {
		return s
	}
	return p.SpecifyFile[nlp.RequestGeneral]
}
