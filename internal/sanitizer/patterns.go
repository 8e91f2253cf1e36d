package sanitizer

import "regexp"

// PII kinds reported by Detect
const (
	KindSSN            = "ssn"
	KindPhone          = "phone"
	KindEmail          = "email"
	KindAddress        = "address"
	KindCreditCard     = "credit_card"
	KindDriversLicense = "drivers_license"
	KindMRN            = "mrn"
	KindDOB            = "dob"
)

type piiPattern struct {
	kind  string
	re    *regexp.Regexp
	token string
}

// compilePatterns returns the redaction patterns in application order.
// SSN runs before the generic digit patterns so a social security number is
// never half-consumed as a phone number. No token contains a digit, so
// running the list twice changes nothing.
func compilePatterns() []piiPattern {
	defs := []struct {
		kind    string
		pattern string
		token   string
	}{
		{KindSSN, `\b\d{3}[-\s]\d{2}[-\s]\d{4}\b`, "[SSN_REDACTED]"},
		{KindPhone, `(?:\+?1[-.\s]?)?(?:\(\d{3}\)\s*|\b\d{3}[-.\s])\d{3}[-.\s]\d{4}\b`, "[PHONE_REDACTED]"},
		{KindEmail, `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`, "[EMAIL_REDACTED]"},
		{KindAddress, `\b\d{1,6}\s+(?:[A-Z][a-z]+\s+){1,3}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Drive|Dr|Lane|Ln|Court|Ct|Way|Place|Pl|Terrace|Circle)\b\.?`, "[ADDRESS_REDACTED]"},
		{KindCreditCard, `\b(?:\d{4}[-\s]?){3}\d{4}\b`, "[CREDIT_CARD_REDACTED]"},
		{KindDriversLicense, `(?i)\b(?:driver'?s?\s+licen[sc]e|DL)(?:\s+(?:number|no\.?|#))?[:#\s]*[A-Z]{0,3}\d[A-Z0-9]{4,14}\b`, "[DRIVERS_LICENSE_REDACTED]"},
		{KindMRN, `(?i)\b(?:MRN|medical\s+record(?:\s+number)?|patient\s+id)[:#\s]*[A-Z0-9-]*\d[A-Z0-9-]{3,}\b`, "[MRN_REDACTED]"},
		{KindDOB, `(?i)\b(?:DOB|date\s+of\s+birth|born(?:\s+on)?)[:\s]*(?:\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}-\d{2}-\d{2})\b`, "[DOB_REDACTED]"},
	}

	patterns := make([]piiPattern, 0, len(defs))
	for _, d := range defs {
		patterns = append(patterns, piiPattern{
			kind:  d.kind,
			re:    regexp.MustCompile(d.pattern),
			token: d.token,
		})
	}
	return patterns
}

type medicationClass struct {
	name     string
	category string
}

// medicationClasses maps drug names (generic and brand) to a class label.
// Matching is by word-bounded substring of the lowercased medication name.
var medicationClasses = []medicationClass{
	{"lithium", "mood_stabilizer"},
	{"lamotrigine", "mood_stabilizer"},
	{"lamictal", "mood_stabilizer"},
	{"valproate", "mood_stabilizer"},
	{"divalproex", "mood_stabilizer"},
	{"depakote", "mood_stabilizer"},
	{"carbamazepine", "mood_stabilizer"},
	{"sertraline", "ssri"},
	{"zoloft", "ssri"},
	{"fluoxetine", "ssri"},
	{"prozac", "ssri"},
	{"escitalopram", "ssri"},
	{"lexapro", "ssri"},
	{"citalopram", "ssri"},
	{"celexa", "ssri"},
	{"paroxetine", "ssri"},
	{"paxil", "ssri"},
	{"venlafaxine", "snri"},
	{"effexor", "snri"},
	{"duloxetine", "snri"},
	{"cymbalta", "snri"},
	{"desvenlafaxine", "snri"},
	{"bupropion", "atypical_antidepressant"},
	{"wellbutrin", "atypical_antidepressant"},
	{"mirtazapine", "atypical_antidepressant"},
	{"trazodone", "atypical_antidepressant"},
	{"quetiapine", "antipsychotic"},
	{"seroquel", "antipsychotic"},
	{"aripiprazole", "antipsychotic"},
	{"abilify", "antipsychotic"},
	{"olanzapine", "antipsychotic"},
	{"risperidone", "antipsychotic"},
	{"lurasidone", "antipsychotic"},
	{"lorazepam", "benzodiazepine"},
	{"ativan", "benzodiazepine"},
	{"alprazolam", "benzodiazepine"},
	{"xanax", "benzodiazepine"},
	{"clonazepam", "benzodiazepine"},
	{"klonopin", "benzodiazepine"},
	{"diazepam", "benzodiazepine"},
	{"valium", "benzodiazepine"},
	{"methylphenidate", "stimulant"},
	{"ritalin", "stimulant"},
	{"adderall", "stimulant"},
	{"amphetamine", "stimulant"},
	{"lisdexamfetamine", "stimulant"},
	{"vyvanse", "stimulant"},
	{"buspirone", "anxiolytic"},
	{"hydroxyzine", "anxiolytic"},
	{"zolpidem", "sleep_aid"},
	{"ambien", "sleep_aid"},
	{"melatonin", "sleep_aid"},
	{"propranolol", "beta_blocker"},
	{"prazosin", "alpha_blocker"},
	{"naltrexone", "addiction_treatment"},
	{"buprenorphine", "addiction_treatment"},
}

// GenericMedication is the label for drug names missing from the dictionary
const GenericMedication = "psychiatric_medication"
