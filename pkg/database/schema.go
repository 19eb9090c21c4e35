package database

const migration001Up = `
CREATE TABLE IF NOT EXISTS students (
    id UUID PRIMARY KEY,
    lrn VARCHAR(12) NOT NULL UNIQUE,
    full_name VARCHAR(200) NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS strands (
    id UUID PRIMARY KEY,
    code VARCHAR(20) NOT NULL UNIQUE,
    name VARCHAR(100) NOT NULL
);

CREATE TABLE IF NOT EXISTS sections (
    id UUID PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    grade_level INTEGER NOT NULL,
    strand_id UUID NOT NULL REFERENCES strands(id),
    CONSTRAINT valid_grade_level CHECK (grade_level IN (11, 12))
);

CREATE TABLE IF NOT EXISTS subjects (
    id UUID PRIMARY KEY,
    code VARCHAR(20) NOT NULL UNIQUE,
    name VARCHAR(200) NOT NULL
);

CREATE TABLE IF NOT EXISTS school_years (
    id UUID PRIMARY KEY,
    year_start VARCHAR(4) NOT NULL,
    year_end VARCHAR(4) NOT NULL,
    semester VARCHAR(30) NOT NULL,
    is_active BOOLEAN NOT NULL DEFAULT FALSE,
    enrollment_start TIMESTAMP WITH TIME ZONE,
    enrollment_end TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

-- At most one school year active at any time.
CREATE UNIQUE INDEX IF NOT EXISTS school_years_single_active
    ON school_years (is_active) WHERE is_active;

CREATE TABLE IF NOT EXISTS class_offerings (
    id UUID PRIMARY KEY,
    subject_id UUID NOT NULL REFERENCES subjects(id),
    section_id UUID NOT NULL REFERENCES sections(id),
    school_year_id UUID NOT NULL REFERENCES school_years(id),
    schedule VARCHAR(200) NOT NULL DEFAULT '',
    faculty_name VARCHAR(200) NOT NULL DEFAULT '',
    CONSTRAINT class_offering_unique UNIQUE (subject_id, section_id, school_year_id)
);

CREATE INDEX IF NOT EXISTS idx_class_offerings_section_year
    ON class_offerings (section_id, school_year_id);

CREATE TABLE IF NOT EXISTS enrollments (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL REFERENCES students(id),
    school_year_id UUID NOT NULL REFERENCES school_years(id),
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    intended_grade_level INTEGER NOT NULL,
    enrollment_type VARCHAR(20) NOT NULL,
    assigned_section_id UUID REFERENCES sections(id),
    assigned_strand_id UUID REFERENCES strands(id),
    documents_attached BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_by VARCHAR(100),
    CONSTRAINT enrollment_student_year_unique UNIQUE (student_id, school_year_id),
    CONSTRAINT valid_enrollment_status CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED', 'ENROLLED')),
    CONSTRAINT valid_enrollment_type CHECK (enrollment_type IN ('NEW', 'RETURNING', 'TRANSFEREE')),
    CONSTRAINT valid_intended_grade CHECK (intended_grade_level IN (11, 12))
);

CREATE INDEX IF NOT EXISTS idx_enrollments_school_year ON enrollments (school_year_id);
CREATE INDEX IF NOT EXISTS idx_enrollments_status ON enrollments (status);

CREATE TABLE IF NOT EXISTS strand_preferences (
    enrollment_id UUID NOT NULL REFERENCES enrollments(id) ON DELETE CASCADE,
    strand_id UUID NOT NULL REFERENCES strands(id),
    preference_order INTEGER NOT NULL,
    CONSTRAINT strand_preference_unique UNIQUE (enrollment_id, strand_id),
    CONSTRAINT strand_preference_order_unique UNIQUE (enrollment_id, preference_order),
    CONSTRAINT valid_preference_order CHECK (preference_order >= 1)
);

CREATE TABLE IF NOT EXISTS certificates_of_registration (
    id UUID PRIMARY KEY,
    cor_number VARCHAR(20) NOT NULL,
    enrollment_id UUID NOT NULL REFERENCES enrollments(id),
    student_id UUID NOT NULL REFERENCES students(id),
    school_year_id UUID NOT NULL REFERENCES school_years(id),
    section_id UUID NOT NULL REFERENCES sections(id),
    strand_id UUID NOT NULL REFERENCES strands(id),
    semester INTEGER NOT NULL DEFAULT 1,
    year_level INTEGER NOT NULL,
    registration_date TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
    generated_by VARCHAR(100) NOT NULL,
    generated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    CONSTRAINT cor_enrollment_unique UNIQUE (enrollment_id),
    CONSTRAINT cor_number_unique UNIQUE (cor_number),
    CONSTRAINT valid_cor_status CHECK (status IN ('ACTIVE', 'SUPERSEDED'))
);

CREATE INDEX IF NOT EXISTS idx_cor_student ON certificates_of_registration (student_id);

CREATE TABLE IF NOT EXISTS class_enrollments (
    id UUID PRIMARY KEY,
    class_id UUID NOT NULL REFERENCES class_offerings(id),
    student_id UUID NOT NULL REFERENCES students(id),
    enrollment_id UUID NOT NULL REFERENCES enrollments(id),
    section_id UUID NOT NULL REFERENCES sections(id),
    status VARCHAR(20) NOT NULL DEFAULT 'ENROLLED',
    enrolled_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    CONSTRAINT class_enrollment_unique UNIQUE (class_id, student_id, enrollment_id),
    CONSTRAINT valid_class_enrollment_status CHECK (status IN ('ENROLLED', 'CREDITED'))
);

CREATE INDEX IF NOT EXISTS idx_class_enrollments_enrollment ON class_enrollments (enrollment_id);

CREATE TABLE IF NOT EXISTS transferee_credits (
    id UUID PRIMARY KEY,
    student_id UUID NOT NULL REFERENCES students(id),
    subject_id UUID NOT NULL REFERENCES subjects(id),
    credit_status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    CONSTRAINT transferee_credit_unique UNIQUE (student_id, subject_id),
    CONSTRAINT valid_credit_status CHECK (credit_status IN ('PENDING', 'CREDITED'))
);

CREATE TABLE IF NOT EXISTS cor_sequences (
    school_year_id UUID PRIMARY KEY REFERENCES school_years(id),
    last_seq INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS audit_logs (
    id UUID PRIMARY KEY,
    user_id VARCHAR(100),
    action VARCHAR(50) NOT NULL,
    resource VARCHAR(50) NOT NULL,
    resource_id VARCHAR(100),
    old_values JSONB,
    new_values JSONB,
    ip_address VARCHAR(100) NOT NULL DEFAULT '',
    user_agent VARCHAR(200) NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs (resource, resource_id);
`

const migration001Down = `
DROP TABLE IF EXISTS audit_logs;
DROP TABLE IF EXISTS cor_sequences;
DROP TABLE IF EXISTS transferee_credits;
DROP TABLE IF EXISTS class_enrollments;
DROP TABLE IF EXISTS certificates_of_registration;
DROP TABLE IF EXISTS strand_preferences;
DROP TABLE IF EXISTS enrollments;
DROP TABLE IF EXISTS class_offerings;
DROP TABLE IF EXISTS school_years;
DROP TABLE IF EXISTS subjects;
DROP TABLE IF EXISTS sections;
DROP TABLE IF EXISTS strands;
DROP TABLE IF EXISTS students;
`

// Migrations returns all embedded migrations in order.
func Migrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "core_schema",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
	}
}
