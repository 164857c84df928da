package yamlio

import "testing"

func TestValidateSchemaHeaderFromBytes(t *testing.T) {
	cases := []struct {
		name     string
		content  string
		expected string
		wantErr  bool
	}{
		{"valid report", "schema_version: 1\nfile_type: job_report\n", FileTypeJobReport, false},
		{"valid any type", "schema_version: 1\nfile_type: topology\n", "", false},
		{"missing version", "file_type: job_report\n", FileTypeJobReport, true},
		{"future version", "schema_version: 99\nfile_type: job_report\n", FileTypeJobReport, true},
		{"missing file type", "schema_version: 1\n", "", true},
		{"unknown file type", "schema_version: 1\nfile_type: grocery_list\n", "", true},
		{"type mismatch", "schema_version: 1\nfile_type: topology\n", FileTypeJobReport, true},
		{"not yaml", ":::\n\t", FileTypeJobReport, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSchemaHeaderFromBytes([]byte(tc.content), tc.expected)
			if tc.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
