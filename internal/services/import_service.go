package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/plantops/valve-ledger-api/internal/metrics"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/internal/statemachine"
	"github.com/plantops/valve-ledger-api/pkg/logger"
	"github.com/xuri/excelize/v2"
)

// Conflict modes for import execution
const (
	ConflictCancel    = "cancel"
	ConflictSkip      = "skip"
	ConflictOverwrite = "overwrite"
)

// ImportRow is one data row of an import file. Line is the 1-based sheet row.
type ImportRow struct {
	Line   int               `json:"line"`
	Tag    string            `json:"tag"`
	Fields map[string]string `json:"fields"`
}

// ImportConflict is a row whose tag already exists
type ImportConflict struct {
	Tag            string    `json:"tag"`
	ExistingID     uint      `json:"existing_id"`
	ExistingName   string    `json:"existing_name"`
	ExistingStatus string    `json:"existing_status"`
	Row            ImportRow `json:"row"`
}

// ImportPreview classifies the rows of a file against stored valves
type ImportPreview struct {
	NewRecords []ImportRow      `json:"new_records"`
	Conflicts  []ImportConflict `json:"conflicts"`
	Duplicates []string         `json:"duplicates"` // tags repeated in the file; only the first row is used
	Total      int              `json:"total"`
}

// ImportResult reports what an import did
type ImportResult struct {
	Imported    int         `json:"imported"`
	Overwritten int         `json:"overwritten"`
	Skipped     int         `json:"skipped"`
	Refused     []BatchSkip `json:"refused"`
}

type ImportService struct {
	repos    *repository.Repositories
	settings *SettingService
	auditSvc *AuditService
	notifier *NotificationService
	runner   *txRunner
}

func NewImportService(repos *repository.Repositories, valves *ValveService, settings *SettingService, auditSvc *AuditService, notifier *NotificationService) *ImportService {
	return &ImportService{
		repos:    repos,
		settings: settings,
		auditSvc: auditSvc,
		notifier: notifier,
		runner:   valves.runner,
	}
}

// ParseWorkbook reads the first sheet of an xlsx file. The header row uses
// field labels (or JSON names); unknown columns are ignored and rows without
// a tag are skipped.
func ParseWorkbook(r io.Reader) ([]ImportRow, []string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrInvalidImport
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidImport, "文件为空")
	}

	columns := make(map[int]string)
	hasTag := false
	for i, header := range rows[0] {
		if field, ok := models.LookupValveField(header); ok {
			columns[i] = field.Key
			if field.Key == "tag" {
				hasTag = true
			}
		}
	}
	if !hasTag {
		return nil, nil, fmt.Errorf("%w: %s", ErrInvalidImport, "缺少位号列")
	}

	var out []ImportRow
	var duplicates []string
	seen := make(map[string]bool)
	for i, row := range rows[1:] {
		fields := make(map[string]string, len(columns))
		for col, key := range columns {
			if col < len(row) {
				if v := strings.TrimSpace(row[col]); v != "" {
					fields[key] = v
				}
			}
		}
		tag := fields["tag"]
		if tag == "" {
			continue
		}
		if seen[tag] {
			duplicates = append(duplicates, tag)
			continue
		}
		seen[tag] = true
		out = append(out, ImportRow{Line: i + 2, Tag: tag, Fields: fields})
	}
	return out, duplicates, nil
}

// Preview parses the file and reports new rows and tag conflicts
func (s *ImportService) Preview(ctx context.Context, actor statemachine.Actor, r io.Reader) (*ImportPreview, error) {
	if !actor.IsPrivileged() {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, statemachine.MsgNeedLeader)
	}
	rows, duplicates, err := ParseWorkbook(r)
	if err != nil {
		return nil, err
	}
	return classifyRows(ctx, s.repos, rows, duplicates)
}

func classifyRows(ctx context.Context, repos *repository.Repositories, rows []ImportRow, duplicates []string) (*ImportPreview, error) {
	tags := make([]string, len(rows))
	for i, row := range rows {
		tags[i] = row.Tag
	}
	existing, err := repos.Valve.FindByTags(ctx, tags)
	if err != nil {
		return nil, err
	}
	byTag := make(map[string]models.Valve, len(existing))
	for _, v := range existing {
		byTag[v.Tag] = v
	}

	preview := &ImportPreview{
		NewRecords: []ImportRow{},
		Conflicts:  []ImportConflict{},
		Duplicates: duplicates,
		Total:      len(rows),
	}
	if preview.Duplicates == nil {
		preview.Duplicates = []string{}
	}
	for _, row := range rows {
		if v, ok := byTag[row.Tag]; ok {
			preview.Conflicts = append(preview.Conflicts, ImportConflict{
				Tag:            row.Tag,
				ExistingID:     v.ID,
				ExistingName:   v.Name,
				ExistingStatus: v.Status,
				Row:            row,
			})
			continue
		}
		preview.NewRecords = append(preview.NewRecords, row)
	}
	return preview, nil
}

// Execute imports the file in one transaction. New rows are created and
// submitted (honouring auto approval); conflicts follow mode.
func (s *ImportService) Execute(ctx context.Context, actor statemachine.Actor, r io.Reader, mode string, ledgerID *uint) (*ImportResult, error) {
	if !actor.IsPrivileged() {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, statemachine.MsgNeedLeader)
	}
	switch mode {
	case "":
		mode = ConflictCancel
	case ConflictCancel, ConflictSkip, ConflictOverwrite:
	default:
		return nil, invalid("无效的冲突处理方式")
	}

	rows, duplicates, err := ParseWorkbook(r)
	if err != nil {
		return nil, err
	}
	autoApprove := s.settings.AutoApproval(ctx)

	result := &ImportResult{Skipped: len(duplicates), Refused: []BatchSkip{}}
	_, err = s.runner.run(ctx, func(st *txState) error {
		if ledgerID != nil {
			if _, err := loadLedgerForWrite(ctx, st.tx, *ledgerID, actor); err != nil {
				return err
			}
		}

		preview, err := classifyRows(ctx, st.tx, rows, duplicates)
		if err != nil {
			return err
		}
		if mode == ConflictCancel && len(preview.Conflicts) > 0 {
			return fmt.Errorf("%w: %d 条", ErrImportConflict, len(preview.Conflicts))
		}

		for _, row := range preview.NewRecords {
			valve := &models.Valve{
				Status:    models.ValveStatusDraft,
				CreatedBy: actor.ID,
				LedgerID:  ledgerID,
			}
			valve.ApplyFields(row.Fields)
			if err := st.tx.Valve.Create(ctx, valve); err != nil {
				return err
			}
			if err := st.transition(ctx, valve, actor, models.ActionSubmit, "导入", autoApprove); err != nil {
				return err
			}
			result.Imported++
		}

		for _, c := range preview.Conflicts {
			if mode != ConflictOverwrite {
				result.Skipped++
				continue
			}
			valve, err := st.tx.Valve.FindByID(ctx, c.ExistingID)
			if err != nil {
				return err
			}
			if d := statemachine.CanTransition(valve, actor, models.ActionEdit); !d.Allowed {
				result.Skipped++
				result.Refused = append(result.Refused, BatchSkip{ID: valve.ID, Tag: valve.Tag, Reason: d.Message})
				continue
			}
			if err := s.overwrite(ctx, st, valve, actor, c.Row.Fields, autoApprove); err != nil {
				return err
			}
			result.Overwritten++
		}
		return nil
	})
	if err != nil {
		if repository.IsDuplicateKey(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}

	metrics.ValveImportsTotal.WithLabelValues("imported").Add(float64(result.Imported))
	metrics.ValveImportsTotal.WithLabelValues("overwritten").Add(float64(result.Overwritten))
	metrics.ValveImportsTotal.WithLabelValues("skipped").Add(float64(result.Skipped))

	summary := fmt.Sprintf("导入 %d 条新记录，覆盖 %d 条，跳过 %d 条", result.Imported, result.Overwritten, result.Skipped)
	s.auditSvc.Log(ctx, actor.ID, AuditImport, "Valve", 0, summary)
	if s.notifier != nil {
		if err := s.notifier.NotifyUser(ctx, actor.ID, "导入完成", summary, models.NotificationTypeImportFinished); err != nil {
			logger.Warn("failed to notify import result", "user_id", actor.ID, "error", err)
		}
	}
	return result, nil
}

// overwrite replaces an existing record's attributes. Like a manual edit the
// record returns to draft; it is resubmitted when the importer created it.
func (s *ImportService) overwrite(ctx context.Context, st *txState, valve *models.Valve, actor statemachine.Actor, fields map[string]string, autoApprove bool) error {
	if err := statemachine.NewValveFSM(valve).Edit(ctx); err != nil {
		return err
	}
	valve.ApplyFields(fields)
	if err := st.tx.Valve.Update(ctx, valve); err != nil {
		return err
	}
	st.touchLedger(valve.LedgerID)

	if !statemachine.CanTransition(valve, actor, models.ActionSubmit).Allowed {
		return nil
	}
	return st.transition(ctx, valve, actor, models.ActionSubmit, "导入覆盖", autoApprove)
}
