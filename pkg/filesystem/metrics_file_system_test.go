package filesystem_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/buildbarn/bb-sectorfs/internal/mock"
	"github.com/buildbarn/bb-sectorfs/pkg/filesystem"
	"github.com/buildbarn/bb-storage/pkg/clock"
	"github.com/buildbarn/bb-storage/pkg/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestMetricsFileSystem(t *testing.T) {
	ctrl := gomock.NewController(t)

	baseFileSystem := mock.NewMockFileSystem(ctrl)
	fs := filesystem.NewMetricsFileSystem(baseFileSystem, clock.SystemClock)

	t.Run("Create", func(t *testing.T) {
		baseFileSystem.EXPECT().Create("/a", 100, false)
		require.NoError(t, fs.Create("/a", 100, false))

		baseFileSystem.EXPECT().Create("/a", 100, false).Return(status.Error(codes.AlreadyExists, "\"/a\" already exists"))
		testutil.RequireEqualStatus(t, status.Error(codes.AlreadyExists, "\"/a\" already exists"), fs.Create("/a", 100, false))
	})

	t.Run("OpenReadWriteClose", func(t *testing.T) {
		baseFileSystem.EXPECT().Open("/a").Return(nil, filesystem.OpenFileID(3), nil)
		_, id, err := fs.Open("/a")
		require.NoError(t, err)
		require.Equal(t, filesystem.OpenFileID(3), id)

		p := make([]byte, 10)
		baseFileSystem.EXPECT().Read(filesystem.OpenFileID(3), p).Return(0, io.EOF)
		n, err := fs.Read(3, p)
		require.Equal(t, io.EOF, err)
		require.Equal(t, 0, n)

		baseFileSystem.EXPECT().Write(filesystem.OpenFileID(3), p).Return(4, io.ErrShortWrite)
		n, err = fs.Write(3, p)
		require.Equal(t, io.ErrShortWrite, err)
		require.Equal(t, 4, n)

		baseFileSystem.EXPECT().Close(filesystem.OpenFileID(3))
		require.NoError(t, fs.Close(3))
	})

	t.Run("RemoveListPrint", func(t *testing.T) {
		baseFileSystem.EXPECT().Remove(true, "/d")
		require.NoError(t, fs.Remove(true, "/d"))

		var output bytes.Buffer
		baseFileSystem.EXPECT().List(&output, false, "/").DoAndReturn(
			func(w io.Writer, recursive bool, p string) error {
				_, err := w.Write([]byte("[F] a\n"))
				return err
			})
		require.NoError(t, fs.List(&output, false, "/"))
		require.Equal(t, "[F] a\n", output.String())

		baseFileSystem.EXPECT().Print(&output).Return(status.Error(codes.FailedPrecondition, "File system is not mounted"))
		testutil.RequireEqualStatus(t, status.Error(codes.FailedPrecondition, "File system is not mounted"), fs.Print(&output))
	})

	t.Run("Unmount", func(t *testing.T) {
		baseFileSystem.EXPECT().Unmount()
		require.NoError(t, fs.Unmount())
	})
}
