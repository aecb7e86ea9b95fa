package prompt

import "regexp"

// localeMatchers is the conclusion phrase table for one language. Adding a
// language is a data change: append an entry here and extend Greeting.
type localeMatchers struct {
	Lang     string
	Patterns []*regexp.Regexp
}

var conclusionTable = []localeMatchers{
	{
		Lang: "en",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)thank you for your time`),
			regexp.MustCompile(`(?i)that concludes our interview`),
			regexp.MustCompile(`(?i)we have all the information we need`),
			regexp.MustCompile(`(?i)thank you for coming in`),
			regexp.MustCompile(`(?i)we('ll| will) be in touch`),
			regexp.MustCompile(`(?i)this concludes`),
			regexp.MustCompile(`(?i)end of (the|our) interview`),
			regexp.MustCompile(`(?i)that('s| is) all (the questions )?I have`),
			regexp.MustCompile(`(?i)best of luck`),
			regexp.MustCompile(`(?i)good luck with`),
		},
	},
	{
		Lang: "bg",
		Patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)благодаря (ви |ти )?за (отделеното )?време(то)?`),
			regexp.MustCompile(`(?i)с това приключва(ме)?`),
			regexp.MustCompile(`(?i)това приключва интервюто`),
			regexp.MustCompile(`(?i)имаме цялата (необходима )?информация`),
			regexp.MustCompile(`(?i)ще се свържем с (вас|теб)`),
			regexp.MustCompile(`(?i)край на интервюто`),
			regexp.MustCompile(`(?i)това (бяха|са) всички(те)? въпроси`),
			regexp.MustCompile(`(?i)желая (ви |ти )?успех`),
			regexp.MustCompile(`(?i)успех занапред`),
		},
	},
}

// IsConcluding reports whether a finished AI turn reads like the end of the
// interview. Every locale is consulted regardless of the session language,
// since output transcription can drift languages mid-conversation.
func IsConcluding(turnText string) bool {
	if turnText == "" {
		return false
	}
	for _, locale := range conclusionTable {
		for _, p := range locale.Patterns {
			if p.MatchString(turnText) {
				return true
			}
		}
	}
	return false
}
