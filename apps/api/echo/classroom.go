package echoapi

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/mahudhurio/core/classroom"
	"github.com/trezcool/mahudhurio/core/user"
)

type classroomApi struct {
	svc      classroom.ServiceInterface
	usrSvc   user.ServiceInterface
	validate *validator.Validate
}

func registerClassroomAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := classroomApi{
		svc:      deps.ClassSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}

	ag := g.Group("", jwt)
	ag.GET("/data", api.snapshot)
	ag.POST("/classes", api.createClass)
	ag.DELETE("/classes/:classId", api.deleteClass)
	ag.POST("/classes/:classId/students", api.enrollStudent)
	ag.DELETE("/classes/:classId/students/:studentId", api.dropStudent)
	ag.POST("/classes/:classId/attendance", api.recordAttendance)
	ag.GET("/classes/:classId/attendance/export", api.exportAttendance)
}

// Handlers

func (api *classroomApi) snapshot(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	snap, err := api.svc.Snapshot(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "building snapshot")
	}
	snap.DisplayName = usr.DisplayName
	return ctx.JSON(http.StatusOK, snap)
}

func (api *classroomApi) createClass(ctx echo.Context) error {
	var data classroom.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.CreateClass(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *classroomApi) deleteClass(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.DeleteClass(ctx.Request().Context(), claims.Subject, ctx.Param("classId"))
	if err != nil {
		if errors.Cause(err) == classroom.ErrClassNotFound {
			return err
		}
		return errors.Wrap(err, "deleting class")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *classroomApi) enrollStudent(ctx echo.Context) error {
	var data classroom.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.EnrollStudent(ctx.Request().Context(), claims.Subject, ctx.Param("classId"), data)
	if err != nil {
		if errors.Cause(err) == classroom.ErrClassNotFound {
			return err
		}
		return errors.Wrap(err, "enrolling student")
	}
	return ctx.JSON(http.StatusCreated, res)
}

func (api *classroomApi) dropStudent(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	res, err := api.svc.DropStudent(
		ctx.Request().Context(), claims.Subject, ctx.Param("classId"), ctx.Param("studentId"),
	)
	if err != nil {
		switch errors.Cause(err) {
		case classroom.ErrClassNotFound, classroom.ErrStudentNotFound:
			return err
		}
		return errors.Wrap(err, "dropping student")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *classroomApi) recordAttendance(ctx echo.Context) error {
	var data classroom.AttendanceSheet
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AttendanceSheet")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	res, err := api.svc.RecordAttendance(ctx.Request().Context(), claims.Subject, ctx.Param("classId"), data)
	if err != nil {
		switch errors.Cause(err) {
		case classroom.ErrClassNotFound, classroom.ErrStudentNotFound:
			return err
		}
		return errors.Wrap(err, "recording attendance")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *classroomApi) exportAttendance(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	class, students, records, err := api.svc.ClassDetail(ctx.Request().Context(), claims.Subject, ctx.Param("classId"))
	if err != nil {
		if errors.Cause(err) == classroom.ErrClassNotFound {
			return err
		}
		return errors.Wrap(err, "loading class detail")
	}

	buf, err := buildAttendanceBook(class, students, records)
	if err != nil {
		return errors.Wrap(err, "building attendance book")
	}

	ctx.Response().Header().Set(
		echo.HeaderContentDisposition,
		fmt.Sprintf(`attachment; filename="%s-attendance.xlsx"`, class.ID),
	)
	const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	return ctx.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}

// buildAttendanceBook renders one sheet: a students x session-dates
// matrix of Present/Absent marks.
func buildAttendanceBook(class classroom.ClassRoom, students []classroom.Student, records []classroom.AttendanceRecord) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Attendance"
	f.SetSheetName(f.GetSheetName(0), sheet)

	// distinct session dates, already date-ordered by the store
	var days []string
	daySeen := make(map[string]struct{})
	marks := make(map[string]map[string]bool) // studentID -> day -> present
	for _, rec := range records {
		day := rec.Date.String()
		if _, ok := daySeen[day]; !ok {
			daySeen[day] = struct{}{}
			days = append(days, day)
		}
		if marks[rec.StudentID] == nil {
			marks[rec.StudentID] = make(map[string]bool)
		}
		marks[rec.StudentID][day] = rec.Present
	}

	header := append([]string{"Registration No", "Name"}, days...)
	for col, val := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err = f.SetCellValue(sheet, cell, val); err != nil {
			return nil, err
		}
	}

	for i, std := range students {
		row := []string{std.RegistrationNumber, std.Name}
		for _, day := range days {
			mark := ""
			if present, ok := marks[std.ID][day]; ok {
				mark = "Absent"
				if present {
					mark = "Present"
				}
			}
			row = append(row, mark)
		}
		for col, val := range row {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			if err = f.SetCellValue(sheet, cell, val); err != nil {
				return nil, err
			}
		}
	}

	return f.WriteToBuffer()
}
