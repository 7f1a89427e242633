package recognize

import "golang.org/x/text/language"

// tesseractCodes maps BCP-47 base languages to Tesseract traineddata codes.
var tesseractCodes = map[string]string{
	"ar": "ara",
	"de": "deu",
	"en": "eng",
	"es": "spa",
	"fr": "fra",
	"it": "ita",
	"ja": "jpn",
	"ko": "kor",
	"nl": "nld",
	"pl": "pol",
	"pt": "por",
	"ru": "rus",
	"tr": "tur",
	"zh": "chi_sim",
}

// TesseractLanguage converts a caller-supplied language identifier to a
// Tesseract code. BCP-47 tags ("en", "en-US", "pt-BR") are mapped via their
// base language; anything unparseable is passed through untouched so native
// Tesseract codes ("eng", "eng+fra") keep working.
func TesseractLanguage(tag string) string {
	if tag == "" {
		return ""
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	base, _ := parsed.Base()
	if code, ok := tesseractCodes[base.String()]; ok {
		return code
	}
	return tag
}
