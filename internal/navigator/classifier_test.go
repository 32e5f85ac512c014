package navigator

import "testing"

func TestClassifyKnownFields(t *testing.T) {
	c := NewClassifier(DefaultAnswers())

	cases := []struct {
		name  string
		field Field
		kind  FillKind
		value string
	}{
		{
			name: "sponsorship radio",
			field: Field{Kind: FieldRadio, Label: "Will you require visa sponsorship?",
				Options: []string{"Yes", "No"}},
			kind: FillChooseRadio, value: "No",
		},
		{
			name: "work authorization radio",
			field: Field{Kind: FieldRadio, Label: "Are you legally authorized to work?",
				Options: []string{"Yes", "No"}},
			kind: FillChooseRadio, value: "Yes",
		},
		{
			name: "veteran checkbox",
			field: Field{Kind: FieldCheckbox, Label: "Are you a protected veteran?",
				Options: []string{"Yes", "No", "Prefer not to say"}},
			kind: FillChooseRadio, value: "No",
		},
		{
			name: "gender select",
			field: Field{Kind: FieldSelect, Label: "Gender",
				Options: []string{"Select an option", "Male", "Female"}},
			kind: FillSelectOption, value: "Male",
		},
		{
			name: "proficiency select",
			field: Field{Kind: FieldSelect, Label: "English proficiency",
				Options: []string{"Select an option", "Native", "Professional"}},
			kind: FillSelectOption, value: "Professional",
		},
		{
			name:  "experience text",
			field: Field{Kind: FieldText, Label: "How many years of experience do you have?"},
			kind:  FillSetText, value: "15",
		},
		{
			name:  "salary text",
			field: Field{Kind: FieldText, Label: "What is your expected compensation?"},
			kind:  FillSetText, value: "50000",
		},
		{
			name:  "notice period text",
			field: Field{Kind: FieldTextArea, Label: "Notice period in days"},
			kind:  FillSetText, value: "0",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fill, ok := c.Classify(tc.field)
			if !ok {
				t.Fatal("field not recognized")
			}
			if fill.Kind != tc.kind || fill.Value != tc.value {
				t.Fatalf("got %+v, want kind=%v value=%s", fill, tc.kind, tc.value)
			}
		})
	}
}

func TestClassifySkipsFilledField(t *testing.T) {
	c := NewClassifier(DefaultAnswers())
	_, ok := c.Classify(Field{Kind: FieldText, Label: "years of experience", Filled: true})
	if ok {
		t.Fatal("filled field must be skipped")
	}
}

func TestClassifySkipsUnknownLabel(t *testing.T) {
	c := NewClassifier(DefaultAnswers())
	_, ok := c.Classify(Field{Kind: FieldText, Label: "Describe your favorite incident"})
	if ok {
		t.Fatal("unknown field must be left for the human")
	}
}

func TestClassifySkipsUnconfiguredAnswer(t *testing.T) {
	answers := DefaultAnswers()
	answers.Gender = ""
	c := NewClassifier(answers)
	_, ok := c.Classify(Field{Kind: FieldSelect, Label: "Gender", Options: []string{"Male", "Female"}})
	if ok {
		t.Fatal("empty answer must disable the category")
	}
}

func TestClassifySkipsRadioWithoutMatchingOption(t *testing.T) {
	c := NewClassifier(DefaultAnswers())
	_, ok := c.Classify(Field{Kind: FieldRadio, Label: "Do you require sponsorship?",
		Options: []string{"Ja", "Nein"}})
	if ok {
		t.Fatal("answer absent from options must not be forced")
	}
}

func TestClassifyMatchesOptionCaseInsensitive(t *testing.T) {
	c := NewClassifier(DefaultAnswers())
	fill, ok := c.Classify(Field{Kind: FieldRadio, Label: "US citizen?",
		Options: []string{"YES", "NO"}})
	if !ok || fill.Value != "YES" {
		t.Fatalf("got %+v ok=%v, want YES", fill, ok)
	}
}
