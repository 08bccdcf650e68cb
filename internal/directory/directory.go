// Package directory defines the patient directory the resolver matches
// against and a YAML-file backed implementation suitable for small clinics
// and tests.
package directory

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Patient is a directory entry. BirthDate uses ISO YYYY-MM-DD.
type Patient struct {
	ID         string `yaml:"id" json:"id"`
	FirstName  string `yaml:"first_name" json:"firstName"`
	LastName   string `yaml:"last_name" json:"lastName"`
	NationalID string `yaml:"national_id,omitempty" json:"nationalId,omitempty"`
	BirthDate  string `yaml:"birth_date,omitempty" json:"birthDate,omitempty"`
	Phone      string `yaml:"phone,omitempty" json:"phone,omitempty"`
}

// FullName joins first and last name with a single space.
func (p Patient) FullName() string {
	if p.FirstName == "" {
		return p.LastName
	}
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// WorkflowEvent records a status transition for a patient's document
// workflow.
type WorkflowEvent struct {
	Status string    `yaml:"status" json:"status"`
	At     time.Time `yaml:"at" json:"at"`
	Note   string    `yaml:"note,omitempty" json:"note,omitempty"`
}

// Directory is the lookup surface the pipeline depends on.
type Directory interface {
	// ListPatients returns all known patients.
	ListPatients() ([]Patient, error)
	// GetPatient returns the patient with the given id.
	GetPatient(id string) (Patient, error)
	// SetWorkflowStatus appends a status event to the patient's workflow
	// history.
	SetWorkflowStatus(patientID, status, note string) error
}

// ErrPatientNotFound is returned when an id has no directory entry.
var ErrPatientNotFound = fmt.Errorf("patient not found")

type fileDoc struct {
	Patients  []Patient                  `yaml:"patients"`
	Workflows map[string][]WorkflowEvent `yaml:"workflows,omitempty"`
}

// FileDirectory stores the directory in a single YAML file. Writes rewrite
// the whole file under a mutex.
type FileDirectory struct {
	mu   sync.Mutex
	path string
}

// NewFileDirectory opens (or lazily creates) a YAML directory at path.
func NewFileDirectory(path string) *FileDirectory {
	return &FileDirectory{path: path}
}

func (d *FileDirectory) load() (*fileDoc, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileDoc{Workflows: map[string][]WorkflowEvent{}}, nil
		}
		return nil, fmt.Errorf("reading directory file: %w", err)
	}
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing directory file: %w", err)
	}
	if doc.Workflows == nil {
		doc.Workflows = map[string][]WorkflowEvent{}
	}
	return &doc, nil
}

func (d *FileDirectory) save(doc *fileDoc) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding directory file: %w", err)
	}
	if err := os.WriteFile(d.path, data, 0o644); err != nil {
		return fmt.Errorf("writing directory file: %w", err)
	}
	return nil
}

func (d *FileDirectory) ListPatients() ([]Patient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, err := d.load()
	if err != nil {
		return nil, err
	}
	return doc.Patients, nil
}

func (d *FileDirectory) GetPatient(id string) (Patient, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, err := d.load()
	if err != nil {
		return Patient{}, err
	}
	for _, p := range doc.Patients {
		if p.ID == id {
			return p, nil
		}
	}
	return Patient{}, fmt.Errorf("%w: %s", ErrPatientNotFound, id)
}

// AddPatient inserts or replaces a patient entry.
func (d *FileDirectory) AddPatient(p Patient) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, err := d.load()
	if err != nil {
		return err
	}
	replaced := false
	for i := range doc.Patients {
		if doc.Patients[i].ID == p.ID {
			doc.Patients[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Patients = append(doc.Patients, p)
	}
	return d.save(doc)
}

func (d *FileDirectory) SetWorkflowStatus(patientID, status, note string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, err := d.load()
	if err != nil {
		return err
	}
	found := false
	for _, p := range doc.Patients {
		if p.ID == patientID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrPatientNotFound, patientID)
	}
	doc.Workflows[patientID] = append(doc.Workflows[patientID], WorkflowEvent{
		Status: status,
		At:     time.Now().UTC(),
		Note:   note,
	})
	return d.save(doc)
}

// WorkflowHistory returns the recorded status events for a patient.
func (d *FileDirectory) WorkflowHistory(patientID string) ([]WorkflowEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, err := d.load()
	if err != nil {
		return nil, err
	}
	return doc.Workflows[patientID], nil
}
