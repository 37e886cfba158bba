package model

import (
	"errors"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Giới hạn tương đương CHECK constraints trên bảng profiles
const (
	MaxNameLength = 200
	MaxBioLength  = 2000
	MinYear       = 1
	MaxYear       = 3000
)

// notNull rejects an explicit null on a NOT NULL column
func notNull(isNull bool) validation.Rule {
	return validation.By(func(interface{}) error {
		if isNull {
			return errors.New("cannot be null")
		}
		return nil
	})
}

// Validate kiểm tra value-domain của từng field theo loại operation.
// Không đụng DB: các check cần đọc dữ liệu (target, mother) nằm ở service.
func (f PersonFields) Validate(kind OperationKind) error {
	isCreate := kind == OpCreate

	name := f.Name.Ptr()
	if name != nil {
		trimmedName := strings.TrimSpace(*name)
		name = &trimmedName
	}

	errs := validation.Errors{
		"name": validation.Validate(name,
			notNull(f.Name.IsNull()),
			validation.When(isCreate, validation.Required.Error("is required")),
			validation.When(f.Name.IsSet(), validation.Required.Error("cannot be blank")),
			validation.RuneLength(1, MaxNameLength),
		),
		"gender": validation.Validate(f.Gender.Ptr(),
			notNull(f.Gender.IsNull()),
			validation.When(isCreate, validation.Required.Error("is required")),
			validation.In(GenderMale, GenderFemale).Error("must be male or female"),
		),
		"status": validation.Validate(f.Status.Ptr(),
			notNull(f.Status.IsNull()),
			validation.In(StatusAlive, StatusDeceased).Error("must be alive or deceased"),
		),
		"sibling_order": validation.Validate(f.SiblingOrder.Ptr(),
			notNull(f.SiblingOrder.IsNull()),
			validation.Min(0).Error("must be >= 0"),
		),
		"birth_year": validation.Validate(f.BirthYear.Ptr(),
			validation.Min(MinYear), validation.Max(MaxYear),
		),
		"death_year": validation.Validate(f.DeathYear.Ptr(),
			validation.Min(MinYear), validation.Max(MaxYear),
		),
		"bio": validation.Validate(f.Bio.Ptr(),
			validation.RuneLength(0, MaxBioLength),
		),
		"family_origin": validation.Validate(f.FamilyOrigin.Ptr(),
			validation.RuneLength(1, MaxNameLength),
		),
	}
	return errs.Filter()
}

// IsEmpty reports whether no field was supplied at all
func (f PersonFields) IsEmpty() bool {
	return !f.Name.IsSet() && !f.Gender.IsSet() && !f.Status.IsSet() &&
		!f.SiblingOrder.IsSet() && !f.BirthYear.IsSet() && !f.DeathYear.IsSet() &&
		!f.Bio.IsSet() && !f.MotherID.IsSet() && !f.FamilyOrigin.IsSet()
}

// ValidatePerson checks cross-field constraints on the merged row
func ValidatePerson(p *Person) error {
	return validation.ValidateStruct(p,
		validation.Field(&p.Name, validation.Required, validation.RuneLength(1, MaxNameLength)),
		validation.Field(&p.Gender, validation.Required, validation.In(GenderMale, GenderFemale)),
		validation.Field(&p.Status, validation.Required, validation.In(StatusAlive, StatusDeceased)),
		validation.Field(&p.SiblingOrder, validation.Min(0)),
		validation.Field(&p.DeathYear,
			validation.When(p.BirthYear != nil && p.DeathYear != nil,
				validation.By(func(interface{}) error {
					if *p.DeathYear < *p.BirthYear {
						return errors.New("must not be before birth_year")
					}
					return nil
				}),
			),
		),
	)
}

// ToValidationError chuyển ozzo errors thành *ValidationError cho operation index.
// Lấy field đầu tiên theo alphabet để message ổn định.
func ToValidationError(index int, err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return NewValidationError(index, "", err.Error())
	}

	fields := make([]string, 0, len(verrs))
	for field := range verrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	first := fields[0]
	return NewValidationError(index, first, verrs[first].Error())
}
